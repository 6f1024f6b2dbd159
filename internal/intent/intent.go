// Package intent holds the closed intent vocabulary and the local keyword
// heuristics shared by the resolver and the dispatcher.
package intent

import (
	"strings"
	"unicode"
)

// Intent is one member of the closed classification vocabulary.
type Intent string

const (
	Greeting     Intent = "greeting"
	Gratitude    Intent = "gratitude"
	Clarify      Intent = "clarify"
	Prediction   Intent = "prediction"
	Warehouse    Intent = "warehouse"
	Route        Intent = "route"
	DelayReason  Intent = "delay_reason"
	Delay        Intent = "delay"
	Analytics    Intent = "analytics"
	Conversation Intent = "conversation"
	TextOnly     Intent = "text_only"
)

// Vocabulary lists every valid intent in classifier prompt order.
var Vocabulary = []Intent{
	Greeting, Gratitude, Clarify, Prediction, Warehouse, Route,
	DelayReason, Delay, Analytics, Conversation, TextOnly,
}

// Parse maps a raw label onto the vocabulary.
func Parse(raw string) (Intent, bool) {
	label := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range Vocabulary {
		if v == label {
			return v, true
		}
	}
	return "", false
}

func (i Intent) String() string { return string(i) }

// Canned reports whether the intent is answered without touching the data.
func (i Intent) Canned() bool {
	return i == Greeting || i == Gratitude || i == Clarify
}

var (
	thanksTokens   = []string{"thanks", "thank you", "thank u", "thx", "ty", "appreciate", "appreciated", "cheers"}
	greetingTokens = []string{"hi", "hello", "hey", "hiya", "howdy", "greetings", "yo", "good morning", "good afternoon", "good evening"}
	domainKeywords = []string{"predict", "forecast", "warehouse", "route", "reason", "delay"}
	forecastTokens = []string{"predict", "forecast", "projection", "project", "future", "next week", "next month", "upcoming", "expect"}
	reasonTokens   = []string{"reason", "why"}
	delayTokens    = []string{"delay", "late", "on time", "on-time"}

	// matched as whole words only ("late" must not fire on "translate",
	// "expect" must not fire on "unexpected")
	wholeWordTokens = map[string]struct{}{"why": {}, "late": {}, "expect": {}, "project": {}, "future": {}}
)

// Normalize lowercases the query and replaces punctuation with spaces so that
// token and phrase checks see "thanks!" as "thanks".
func Normalize(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// WordCount counts whitespace separated words after normalization.
func WordCount(query string) int {
	return len(strings.Fields(Normalize(query)))
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

// IsGratitude is true for short messages carrying a thanks token.
func IsGratitude(query string) bool {
	norm := Normalize(query)
	if norm == "" || WordCount(query) > 6 {
		return false
	}
	for _, tok := range thanksTokens {
		if containsPhrase(norm, tok) {
			return true
		}
	}
	return false
}

// IsGreeting is true for messages of at most four words opening with a greeting.
func IsGreeting(query string) bool {
	norm := Normalize(query)
	if norm == "" || WordCount(query) > 4 {
		return false
	}
	for _, tok := range greetingTokens {
		if norm == tok || strings.HasPrefix(norm, tok+" ") {
			return true
		}
	}
	return false
}

// HasDomainKeyword reports whether the query mentions any analytic subject.
func HasDomainKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsAmbiguous is the shared "too short to act on" condition.
func IsAmbiguous(query string) bool {
	return WordCount(query) <= 4 && !HasDomainKeyword(query)
}

// Keyword infers an analytic intent from keywords alone. ok is false when no
// rule matched.
func Keyword(query string) (Intent, bool) {
	lower := strings.ToLower(query)
	norm := Normalize(query)
	switch {
	case anyContains(lower, norm, forecastTokens):
		return Prediction, true
	case strings.Contains(lower, "warehouse"):
		return Warehouse, true
	case strings.Contains(lower, "route"):
		return Route, true
	case anyContains(lower, norm, reasonTokens):
		return DelayReason, true
	case anyContains(lower, norm, delayTokens):
		return Delay, true
	}
	return "", false
}

// Fallback is the last-resort local classification: keyword rules, then
// analytics, demoted to clarify when the query is ambiguous.
func Fallback(query string) Intent {
	if in, ok := Keyword(query); ok {
		return in
	}
	if IsAmbiguous(query) {
		return Clarify
	}
	return Analytics
}

// Underlying resolves the analytic intent a conversational reply borrows.
func Underlying(query string) Intent {
	if in, ok := Keyword(query); ok {
		return in
	}
	return Analytics
}

func anyContains(lower, norm string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(tok, " ") {
			if containsPhrase(norm, tok) {
				return true
			}
			continue
		}
		if _, whole := wholeWordTokens[tok]; whole {
			if containsPhrase(norm, tok) {
				return true
			}
			continue
		}
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

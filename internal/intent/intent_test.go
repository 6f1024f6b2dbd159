package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	in, ok := Parse("  Delay_Reason ")
	assert.True(t, ok)
	assert.Equal(t, DelayReason, in)

	_, ok = Parse("shipping")
	assert.False(t, ok)
}

func TestGratitudeHeuristic(t *testing.T) {
	assert.True(t, IsGratitude("thanks!"))
	assert.True(t, IsGratitude("Thank you so much"))
	assert.True(t, IsGratitude("ok ty"))
	assert.False(t, IsGratitude("thanks, now show me the delay trend for every route please"))
	assert.False(t, IsGratitude("type of delays"))
}

func TestGreetingHeuristic(t *testing.T) {
	assert.True(t, IsGreeting("Hello"))
	assert.True(t, IsGreeting("good morning hermes"))
	assert.False(t, IsGreeting("hey show me route delays today"))
	assert.False(t, IsGreeting("highest delay route"))
}

func TestAmbiguity(t *testing.T) {
	assert.True(t, IsAmbiguous("and now?"))
	assert.False(t, IsAmbiguous("route stats"))
	assert.False(t, IsAmbiguous("can you give me the overall numbers for the dataset"))
}

func TestKeywordRules(t *testing.T) {
	cases := map[string]Intent{
		"forecast next 14 days":           Prediction,
		"which warehouse is slowest":      Warehouse,
		"show me delay by route":          Route,
		"why are shipments held up":       DelayReason,
		"top delay reasons":               DelayReason,
		"how many shipments arrived late": Delay,
		"average delay this month":        Delay,
		"what will happen in the future":  Prediction,
		"what delays should we expect":    Prediction,
		"project delays for october":      Prediction,

		"which warehouse had unexpected delays":            Warehouse,
		"what is the expected delivery time per warehouse": Warehouse,
		"list routes with unexpected delay spikes":         Route,
		"unexpected delays":                                Delay,
		"delays across our projects":                       Delay,
	}
	for query, want := range cases {
		got, ok := Keyword(query)
		assert.True(t, ok, query)
		assert.Equal(t, want, got, query)
	}

	_, ok := Keyword("translate this")
	assert.False(t, ok)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, Clarify, Fallback("hmm"))
	assert.Equal(t, Analytics, Fallback("give me the overall numbers for everything"))
	assert.Equal(t, Route, Fallback("routes"))
	assert.Equal(t, Analytics, Underlying("hmm"))
}

package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Source loads a fresh dataset snapshot. A missing or empty source yields an
// empty dataset, not an error.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"01/02/2006",
}

// ParseDate accepts the date layouts shipment exports use.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// Open picks a source implementation from the location string:
// postgres:// and postgresql:// URLs use pgx, sqlite:// or a .db/.sqlite file
// uses the embedded SQLite driver, anything else is read as CSV.
func Open(location, table string, logger zerolog.Logger) (Source, error) {
	logger = logger.With().Str("component", "dataset").Logger()
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenSQL("pgx", location, table, logger)
	case strings.HasPrefix(lower, "sqlite://"):
		return OpenSQL("sqlite", location[len("sqlite://"):], table, logger)
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQL("sqlite", location, table, logger)
	}
	return NewCSVSource(location, logger), nil
}

// CSVSource reads a header-driven shipment CSV from disk on every Load.
type CSVSource struct {
	path   string
	logger zerolog.Logger
}

func NewCSVSource(path string, logger zerolog.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger}
}

// Path returns the file the source reads.
func (s *CSVSource) Path() string { return s.path }

func (s *CSVSource) Load(ctx context.Context) (*Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Str("path", s.path).Msg("dataset file not found, serving empty dataset")
			return Empty(), nil
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(ctx, f, s.logger)
}

// ReadCSV parses shipment rows. Rows with an unparseable date are skipped.
func ReadCSV(ctx context.Context, r io.Reader, logger zerolog.Logger) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["date"]; !ok {
		return nil, errors.New("csv is missing the date column")
	}
	var present []string
	for _, c := range FilterColumns {
		if _, ok := index[c]; ok {
			present = append(present, c)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Shipment
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		date, err := ParseDate(field(rec, "date"))
		if err != nil {
			logger.Warn().Int("line", line).Err(err).Msg("skipping shipment row")
			continue
		}
		id := field(rec, "id")
		if id == "" {
			id = strconv.Itoa(line - 1)
		}
		rows = append(rows, Shipment{
			ID:           id,
			Route:        field(rec, ColumnRoute),
			Warehouse:    field(rec, ColumnWarehouse),
			DeliveryTime: parseNumber(field(rec, "delivery_time")),
			DelayMinutes: parseNumber(field(rec, "delay_minutes")),
			DelayReason:  field(rec, ColumnDelayReason),
			Date:         date,
		})
	}
	return New(rows, present...), nil
}

func parseNumber(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// SQLSource reads shipments from a database table on every Load.
type SQLSource struct {
	db     *sql.DB
	table  string
	logger zerolog.Logger
}

// OpenSQL opens driver/dsn and verifies the table name is a plain identifier.
func OpenSQL(driver, dsn, table string, logger zerolog.Logger) (*SQLSource, error) {
	if table == "" {
		table = "shipments"
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid dataset table name %q", table)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s dataset: %w", driver, err)
	}
	return &SQLSource{db: db, table: table, logger: logger}, nil
}

func (s *SQLSource) Close() error { return s.db.Close() }

func (s *SQLSource) Load(ctx context.Context) (*Dataset, error) {
	query := fmt.Sprintf(`SELECT id, route, warehouse, delivery_time, delay_minutes, delay_reason, date FROM %s`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		var (
			id                       any
			route, warehouse, reason sql.NullString
			delivery, delay          sql.NullFloat64
			rawDate                  any
		)
		if err := rows.Scan(&id, &route, &warehouse, &delivery, &delay, &reason, &rawDate); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		date, err := scanDate(rawDate)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping shipment row")
			continue
		}
		out = append(out, Shipment{
			ID:           scanID(id),
			Route:        strings.TrimSpace(route.String),
			Warehouse:    strings.TrimSpace(warehouse.String),
			DeliveryTime: delivery.Float64,
			DelayMinutes: delay.Float64,
			DelayReason:  strings.TrimSpace(reason.String),
			Date:         date,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset: %w", err)
	}
	return New(out, FilterColumns...), nil
}

func scanID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(id)
	default:
		return fmt.Sprint(id)
	}
}

func scanDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		return ParseDate(d)
	case []byte:
		return ParseDate(string(d))
	case nil:
		return time.Time{}, errors.New("null date")
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

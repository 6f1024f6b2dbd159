package dataset

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `id,route,warehouse,delivery_time,delay_minutes,delay_reason,date
1,Route A,WH1,2.5,0,none,2024-10-01
2,Route A,WH2,3.0,30,Weather,2024-10-02
3,Route B,WH1,4.0,45,Traffic,2024-10-03
4,Route B,WH2,1.5,0,none,not-a-date
5,Route A,WH1,2.0,10,Traffic,2024-10-05
`

func writeCSV(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "shipments.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadCSVSkipsBadDates(t *testing.T) {
	ds, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())
	assert.True(t, ds.HasColumn(ColumnRoute))
	assert.Equal(t, []string{"Route A", "Route B"}, ds.Distinct(ColumnRoute))
	assert.Equal(t, []string{"Traffic", "Weather", "none"}, ds.Distinct(ColumnDelayReason))

	latest, ok := ds.MaxDate()
	require.True(t, ok)
	assert.Equal(t, "2024-10-05", latest.Format("2006-01-02"))
}

func TestReadCSVWithoutOptionalColumns(t *testing.T) {
	body := "id,delivery_time,delay_minutes,date\n1,2,5,2024-01-01\n"
	ds, err := ReadCSV(context.Background(), strings.NewReader(body), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.False(t, ds.HasColumn(ColumnWarehouse))
	assert.Empty(t, ds.Distinct(ColumnWarehouse))
	assert.Empty(t, ds.Columns())
}

func TestMissingFileYieldsEmptyDataset(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), zerolog.Nop())
	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	_, ok := ds.MaxDate()
	assert.False(t, ok)
}

func TestApplyDoesNotMutate(t *testing.T) {
	ds, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV), zerolog.Nop())
	require.NoError(t, err)

	tf := &Timeframe{
		Start: time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC),
	}
	sub := ds.Apply(tf, Filters{ColumnRoute: "Route A"})
	require.Equal(t, 1, sub.Len())
	assert.Equal(t, "2", sub.Rows()[0].ID)
	assert.Equal(t, 4, ds.Len())
	assert.True(t, sub.HasColumn(ColumnRoute))

	rows := ds.Rows()
	rows[0].Route = "changed"
	assert.Equal(t, "Route A", ds.Rows()[0].Route)
}

func TestOpenPicksSource(t *testing.T) {
	src, err := Open("data/shipments.csv", "", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &CSVSource{}, src)

	_, err = Open(filepath.Join(t.TempDir(), "x.db"), "shipments; DROP TABLE x", zerolog.Nop())
	assert.Error(t, err)
}

func TestSQLiteSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE shipments (id INTEGER, route TEXT, warehouse TEXT, delivery_time REAL, delay_minutes REAL, delay_reason TEXT, date TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO shipments VALUES (1,'Route A','WH1',2.5,12,'Weather','2024-10-01'), (2,'Route B','WH2',3,0,'none','2024-10-02')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := Open("sqlite://"+path, "shipments", zerolog.Nop())
	require.NoError(t, err)
	sqlSrc := src.(*SQLSource)
	defer sqlSrc.Close()

	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "1", ds.Rows()[0].ID)
	assert.Equal(t, 12.0, ds.Rows()[0].DelayMinutes)
	assert.Equal(t, []string{"WH1", "WH2"}, ds.Distinct(ColumnWarehouse))
}

func TestWatchedReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, sampleCSV)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := Watch(ctx, NewCSVSource(path, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)

	ds, err := w.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())

	more := sampleCSV + "6,Route C,WH3,2.0,5,Traffic,2024-10-06\n"
	require.NoError(t, os.WriteFile(path, []byte(more), 0o644))

	require.Eventually(t, func() bool {
		ds, err := w.Load(ctx)
		return err == nil && ds.Len() == 5
	}, 2*time.Second, 20*time.Millisecond)
}

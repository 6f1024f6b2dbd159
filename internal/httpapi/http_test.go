package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/config"
	"hermes/internal/dataset"
	"hermes/internal/llm"
	"hermes/internal/pipeline"
	"hermes/internal/service"
	"hermes/internal/store"
	"hermes/queue"
)

const testCSV = `id,route,warehouse,delivery_time,delay_minutes,delay_reason,date
1,Route A,WH1,2,0,none,2024-10-01
2,Route B,WH2,4,30,Weather,2024-10-01
3,Route A,WH1,3,10,Traffic,2024-10-02
4,Route B,WH2,5,45,Weather,2024-10-02
5,Route A,WH2,2,0,none,2024-10-03
6,Route B,WH1,3,20,Traffic,2024-10-03
`

func setupTest(t *testing.T, workers int) (*http.ServeMux, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "shipments.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))

	cfg := config.Config{
		WorkerCount:    workers,
		QueueSize:      1,
		HistoryLimit:   10,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
	st, err := store.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q := queue.New(cfg.QueueSize, cfg.WorkerCount, 5*time.Second, zerolog.Nop())
	q.Start(ctx)

	svc := service.New(dataset.NewCSVSource(csvPath, zerolog.Nop()), pipeline.New(llm.Disabled{}, zerolog.Nop()), q, st, 5*time.Second, zerolog.Nop())
	mux := http.NewServeMux()
	NewRouter(cfg, svc, st, q, zerolog.Nop()).Register(mux)
	return mux, st
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := setupTest(t, 1)
	req := httptest.NewRequest(http.MethodGet, "/ops/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestDataEndpointWithCORS(t *testing.T) {
	mux, _ := setupTest(t, 1)
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	assert.Len(t, rows, 6)
	assert.Equal(t, "Route A", rows[0]["route"])

	req = httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestQueryEndpointRecordsRun(t *testing.T) {
	mux, st := setupTest(t, 1)
	body := bytes.NewBufferString(`{"query":"show me delay by route"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var payload pipeline.Payload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "route", payload.Intent.String())
	require.NotNil(t, payload.Result)
	require.NotNil(t, payload.Result.Chart)
	assert.Len(t, payload.Result.Chart.Data, 2)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "show me delay by route", runs[0].Query)
	assert.Equal(t, payload.Steps, runs[0].Steps)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ops/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "show me delay by route")
}

func TestQueryEndpointValidation(t *testing.T) {
	mux, _ := setupTest(t, 1)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestQueryEndpointBusy(t *testing.T) {
	mux, _ := setupTest(t, 0)

	// With no workers the single slot fills and stays full.
	go func() {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"delays"}`)))
	}()
	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ops/status", nil))
		return strings.Contains(rr.Body.String(), `"length":1`)
	}, 2*time.Second, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"delays"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestChatKeepsConnectionHistory(t *testing.T) {
	mux, _ := setupTest(t, 1)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(query string) pipeline.Payload {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(query)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var payload pipeline.Payload
		require.NoError(t, json.Unmarshal(msg, &payload))
		return payload
	}

	first := send("which warehouse performs best")
	assert.Equal(t, "warehouse", first.Intent.String())

	second := send("what about that?")
	assert.Equal(t, "warehouse", second.Intent.String())
	assert.Contains(t, second.Steps, "Reused prior intent 'warehouse' for short follow-up")
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	mux, _ := setupTest(t, 1)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/chat", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	var reply chatError
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "query is required", reply.Error)
}

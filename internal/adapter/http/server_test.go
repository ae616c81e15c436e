package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/storm-cell-tracker/internal/adapter/http"
	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type staticCells []domain.CellRecord

func (s staticCells) Cells() []domain.CellRecord { return s }

func newTestServer(readyErr error, cells ...domain.CellRecord) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, staticCells(cells), logger)
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("no frame processed yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no frame processed yet", body["error"])
}

type deadlineRecorder struct {
	hasDeadline bool
}

func (d *deadlineRecorder) CheckReadiness(ctx context.Context) error {
	_, d.hasDeadline = ctx.Deadline()
	return nil
}

func TestReadyzBoundsReadinessCheck(t *testing.T) {
	checker := &deadlineRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httpadapter.NewServer(":0", checker, staticCells(nil), logger)

	rec := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, checker.hasDeadline, "readiness check runs under a timeout")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCellsEndpoint(t *testing.T) {
	cells := []domain.CellRecord{
		{ID: 3, NumGates: 10, Centroid: domain.LatLon{Lat: 35, Lon: 262}, MaxRefl: 55, StormHistory: []domain.Snapshot{}},
		{ID: 8, NumGates: 4, Centroid: domain.LatLon{Lat: 36, Lon: 263}, MaxRefl: 47, StormHistory: []domain.Snapshot{}},
	}
	srv := newTestServer(nil, cells...)

	rec := get(t, srv, "/cells")
	assert.Equal(t, http.StatusOK, rec.Code)
	var got []domain.CellRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 8, got[1].ID)

	rec = get(t, srv, "/cells/3")
	assert.Equal(t, http.StatusOK, rec.Code)
	var one domain.CellRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, 10, one.NumGates)
}

func TestCellsEndpoint_Empty(t *testing.T) {
	rec := get(t, newTestServer(nil), "/cells")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCellEndpoint_Errors(t *testing.T) {
	srv := newTestServer(nil, domain.CellRecord{ID: 3})

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/cells/4").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/cells/abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/cells/0").Code)
}

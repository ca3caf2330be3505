package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"PcapLens/internal/core/model"
	"PcapLens/internal/query"
	"PcapLens/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for f, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(content), 0644))
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_ListReports(t *testing.T) {
	root := t.TempDir()
	writeReport(t, root, "b-broken", map[string]string{
		model.ArtifactSummary:  "{}",
		model.MarkerIncomplete: "writer clickhouse: down",
	})
	writeReport(t, root, "a-done", map[string]string{
		model.ArtifactSummary:    "{}",
		model.ArtifactQuickStats: "stats",
		"notes.md":               "ignored",
	})
	writeReport(t, root, ".hidden", map[string]string{model.ArtifactSummary: "{}"})

	rec := get(t, NewServer(root).Router(), "/api/v1/reports")
	require.Equal(t, http.StatusOK, rec.Code)

	var reports []ReportInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 2)

	assert.Equal(t, "a-done", reports[0].Name)
	assert.True(t, reports[0].Complete)
	assert.Equal(t, []string{model.ArtifactSummary, model.ArtifactQuickStats}, reports[0].Artifacts)

	assert.Equal(t, "b-broken", reports[1].Name)
	assert.False(t, reports[1].Complete)
}

func TestServer_ListReports_MissingRoot(t *testing.T) {
	rec := get(t, NewServer(filepath.Join(t.TempDir(), "nope")).Router(), "/api/v1/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_Artifact(t *testing.T) {
	root := t.TempDir()
	writeReport(t, root, "cap", map[string]string{
		model.ArtifactSummary:    `{"metadata":{}}`,
		model.ArtifactQuickStats: "PCAP ANALYSIS - QUICK STATS\n",
	})
	h := NewServer(root).Router()

	rec := get(t, h, "/api/v1/reports/cap/summary.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"metadata":{}}`, rec.Body.String())

	rec = get(t, h, "/api/v1/reports/cap/quick_stats.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/reports/cap/conversations.json").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/reports/cap/secret.txt").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/reports/other/summary.json").Code)
}

func TestServer_ArtifactTraversal(t *testing.T) {
	root := t.TempDir()
	secretDir := filepath.Join(root, ".private")
	require.NoError(t, os.MkdirAll(secretDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, model.ArtifactSummary), []byte("secret"), 0644))
	h := NewServer(root).Router()

	rec := get(t, h, "/api/v1/reports/.private/summary.json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, path := range []string{
		"/api/v1/reports/..%2f..%2fetc/summary.json",
		"/api/v1/reports/../summary.json",
	} {
		rec := get(t, h, path)
		assert.NotEqual(t, http.StatusOK, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "secret", path)
	}
}

type fakeQuerier struct {
	lastQuery query.ErrorQuery
	err       error
}

func (f *fakeQuerier) Captures(context.Context) ([]string, error) {
	return []string{"cap.pcap"}, f.err
}

func (f *fakeQuerier) ErrorCounts(_ context.Context, capture string) ([]query.KindCount, error) {
	return []query.KindCount{{Kind: "TCP_RESET", Count: 3}}, f.err
}

func (f *fakeQuerier) ErrorEvents(_ context.Context, q query.ErrorQuery) ([]report.ErrorEventRow, error) {
	f.lastQuery = q
	return []report.ErrorEventRow{{Capture: q.Capture, Kind: "TCP_RESET", PacketNum: 4}}, f.err
}

func TestServer_StoredReports(t *testing.T) {
	q := &fakeQuerier{}
	h := NewServer(t.TempDir(), WithQuerier(q)).Router()

	rec := get(t, h, "/api/v1/captures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["cap.pcap"]`, rec.Body.String())

	rec = get(t, h, "/api/v1/captures/cap.pcap/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"kind":"TCP_RESET","count":3}]`, rec.Body.String())

	rec = get(t, h, "/api/v1/captures/cap.pcap/events?kind=TCP_RESET&src=10.0.0.1&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, query.ErrorQuery{Capture: "cap.pcap", Kind: "TCP_RESET", Src: "10.0.0.1", Limit: 5}, q.lastQuery)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/captures/cap.pcap/events?limit=x").Code)

	q.err = errors.New("clickhouse down")
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/v1/captures").Code)
}

func TestServer_StoredReportsDisabled(t *testing.T) {
	h := NewServer(t.TempDir()).Router()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/captures").Code)
}

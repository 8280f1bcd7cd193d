package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankboard/pkg/config"
)

const validCSV = "Date operation;Categorie;Sous categorie;Libelle operation;Debit;Credit\n" +
	"31/01/2026;Alimentation;Restaurant;UBER EATS;-28,27;\n" +
	"29/01/2026;Revenus;Salaires;VIR SEPA;;+2953,15\n"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Addr:           "127.0.0.1:0",
		Quantile:       0,
		MaxUploadBytes: 200 << 20,
	}
	srv := New(cfg, log.New(io.Discard))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("operations", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestAnalyzeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	buf, contentType := uploadBody(t, "operations.csv", validCSV, nil)
	resp, err := http.Post(ts.URL+"/api/analyze", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "operations-filtered.csv", body["file"])
	assert.Equal(t, float64(0), body["skipped"])

	report := body["report"].(map[string]any)
	statistics := report["statistics"].(map[string]any)
	assert.Equal(t, float64(1), statistics["count"])

	categoryTotals := report["category_totals"].([]any)
	require.Len(t, categoryTotals, 1)
	first := categoryTotals[0].(map[string]any)
	assert.Equal(t, "Alimentation", first["category"])
}

func TestAnalyzeThenDownload(t *testing.T) {
	ts := newTestServer(t)

	buf, contentType := uploadBody(t, "operations.csv", validCSV, nil)
	resp, err := http.Post(ts.URL+"/api/analyze", contentType, buf)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/files/operations-filtered.csv")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UBER EATS")
	assert.Contains(t, string(data), "-28,27")
	// Income rows are not part of the filtered expense export.
	assert.NotContains(t, string(data), "VIR SEPA")
}

func TestAnalyzeSchemaError(t *testing.T) {
	ts := newTestServer(t)

	buf, contentType := uploadBody(t, "bad.csv", "Date;Montant\n01/01/2026;1,00\n", nil)
	resp, err := http.Post(ts.URL+"/api/analyze", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "invalid CSV schema")
}

func TestAnalyzeInvalidQuantile(t *testing.T) {
	ts := newTestServer(t)

	buf, contentType := uploadBody(t, "operations.csv", validCSV, map[string]string{"quantile": "abc"})
	resp, err := http.Post(ts.URL+"/api/analyze", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeRequiresPost(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/analyze")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestFilesUnknown(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/files/nope.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarginEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/margin?months=6&seed=42")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "success", body["status"])

	monthly := body["monthly"].([]any)
	assert.Len(t, monthly, 6)
	first := monthly[0].(map[string]any)
	assert.NotEmpty(t, first["month"])
	assert.Contains(t, first, "margin_pct")
}

func TestMarginRejectsBadMonths(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/margin?months=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/locstore"
	"github.com/aweris/locstore/internal/replicated"
)

// newTestServer wires a replicated-only router behind the HTTP surface.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repl := replicated.New(time.Minute, nil)
	mode := locstore.NewModeSet(
		locstore.NewBackendSet(locstore.Replicated),
		locstore.NewBackendSet(locstore.Replicated),
	)
	router := locstore.New(mode, nil, repl)

	srv := New(router, nil, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRegisterThenLookup(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/register", map[string]any{
		"machine": "m1",
		"blobs":   []map[string]any{{"hash": "h1", "size": 42}},
		"touch":   true,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/lookup", map[string]any{
		"hashes": []string{"h1"},
		"origin": "local",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Locations map[locstore.ContentHash]locstore.LocationSet `json:"locations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body.Locations, locstore.ContentHash("h1"))
	assert.Equal(t, int64(42), body.Locations["h1"].Size)
	assert.Equal(t, []locstore.MachineLocation{"m1"}, body.Locations["h1"].Machines)
}

func TestTrimRemovesLocations(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/v1/register", map[string]any{
		"machine": "m1",
		"blobs":   []map[string]any{{"hash": "h1"}},
	})
	resp := postJSON(t, ts.URL+"/v1/trim", map[string]any{"hashes": []string{"h1"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/lookup", map[string]any{"hashes": []string{"h1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Locations map[string]any `json:"locations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Locations)
}

func TestTrimReplicasIsVacuousWithoutLegacy(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/trim-replicas", map[string]any{
		"replicas": map[string][]string{"h1": {"m1"}},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGetBlobUnsupportedBackend(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/blobs/h1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMachineEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/machines/random")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no machine registered yet")

	postJSON(t, ts.URL+"/v1/register", map[string]any{
		"machine": "m1",
		"blobs":   []map[string]any{{"hash": "h1"}},
	})

	resp, err = http.Get(ts.URL + "/v1/machines/random")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Machine string `json:"machine"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "m1", body.Machine)

	active, err := http.Get(ts.URL + "/v1/machines/m1/active")
	require.NoError(t, err)
	defer active.Body.Close()
	assert.Equal(t, http.StatusOK, active.StatusCode)
}

func TestCountersAreNamespaced(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/v1/register", map[string]any{
		"machine": "m1",
		"blobs":   []map[string]any{{"hash": "h1"}},
	})

	resp, err := http.Get(ts.URL + "/v1/counters")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var counters map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&counters))
	assert.Equal(t, int64(1), counters["replicated.registers"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

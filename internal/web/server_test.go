package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/session"
)

func get(t *testing.T, s *Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestReadingBeforeFirstCycle(t *testing.T) {
	s := New("1.0.0", nil)

	resp, _ := get(t, s, "/reading")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadingReturnsLatestCycle(t *testing.T) {
	s := New("1.0.0", nil)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Publish(context.Background(), session.Cycle{
		Seq:         7,
		At:          at,
		Mode:        scpi.ModeResistance,
		Measurement: scpi.Measurement{Value: 9.9e37, Raw: "+9.90000000E+37"},
		Reading:     scpi.Reading{Value: "O.L.", Overrange: true},
		ModeLine:    "RES, ",
		Stale:       true,
		Err:         errors.New("transport timeout"),
	}))

	resp, body := get(t, s, "/reading")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var r Reading
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, uint64(7), r.Seq)
	assert.True(t, at.Equal(r.Timestamp))
	assert.Equal(t, "res", r.Mode)
	assert.Equal(t, "RES", r.Token)
	assert.Equal(t, "O.L.", r.Value)
	assert.True(t, r.Overrange)
	assert.True(t, r.Stale)
	assert.Equal(t, "transport timeout", r.Error)
}

func TestHealthAndVersion(t *testing.T) {
	s := New("1.2.3", nil)

	resp, body := get(t, s, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "1.2.3", health["Version"])
	assert.Equal(t, true, health["Stale"])

	resp, body = get(t, s, "/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var version map[string]string
	require.NoError(t, json.Unmarshal(body, &version))
	assert.Equal(t, "1.2.3", version["version"])
}

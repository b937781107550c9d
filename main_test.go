package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandcaster/ble"
	"wandcaster/hub"
	"wandcaster/motion"
	"wandcaster/session"
)

func newTestMux(t *testing.T) (*http.ServeMux, *deviceState) {
	t.Helper()
	log, _ := test.NewNullLogger()
	sess := session.New(session.DefaultConfig(), motion.NewTracker(motion.DefaultConfig()), nil, nil, log)
	device := &deviceState{}
	return newMux(hub.New(log), sess, device), device
}

func TestStateEndpoint(t *testing.T) {
	mux, device := newTestMux(t)
	device.set("E0:F7:BF:11:22:33", ble.DeviceInfo{Firmware: "1.0.0", ModelName: "Ron Weasley"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Spell   string `json:"spell"`
		Battery int    `json:"battery"`
		Device  struct {
			Connected bool   `json:"connected"`
			Address   string `json:"address"`
			Firmware  string `json:"firmware"`
			Model     string `json:"model"`
		} `json:"device"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, session.IdleSpell, body.Spell)
	assert.Equal(t, -1, body.Battery)
	assert.True(t, body.Device.Connected)
	assert.Equal(t, "E0:F7:BF:11:22:33", body.Device.Address)
	assert.Equal(t, "1.0.0", body.Device.Firmware)
	assert.Equal(t, "Ron Weasley", body.Device.Model)

	device.clear()
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Device.Connected)
}

func TestResetEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

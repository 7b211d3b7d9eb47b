package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/journalpost/internal/auth"
	"github.com/journalpost/internal/config"
	"github.com/journalpost/internal/database"
	"github.com/journalpost/internal/deliver"
	"github.com/journalpost/internal/engine"
	"github.com/journalpost/internal/models"
	"github.com/journalpost/internal/render"
	"github.com/journalpost/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiRig struct {
	srv    *httptest.Server
	email  *deliver.MockAdapter
	sms    *deliver.MockAdapter
	apiKey string
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	st := store.NewScheduleStore(db)
	authSvc := auth.NewService(db)
	email := deliver.NewMockAdapter(models.ChannelEmail)
	sms := deliver.NewMockAdapter(models.ChannelSMS)
	eng := engine.New(st, render.NewPDFRenderer(),
		[]deliver.Adapter{email, sms}, 5*time.Second, zap.NewNop())

	cfg := &config.Config{}
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.Requests = 1000

	server := NewServer(st, authSvc, eng, cfg, zap.NewNop())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	rig := &apiRig{srv: srv, email: email, sms: sms}

	resp := rig.do(t, http.MethodPost, "/api/auth/register", nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	var reg struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &reg))
	rig.apiKey = reg.APIKey
	return rig
}

// do performs a request and captures the response for assertions.
func (r *apiRig) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, r.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set(auth.HeaderAPIKey, r.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	_, err = rec.Body.ReadFrom(resp.Body)
	require.NoError(t, err)
	return rec
}

func validCreateBody() map[string]interface{} {
	entries := []map[string]interface{}{}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entries = append(entries, map[string]interface{}{
			"id":         fmt.Sprintf("entry-%d", i),
			"title":      fmt.Sprintf("Day %d", i),
			"body":       "Wrote things down.",
			"created_at": base.AddDate(0, 0, i).Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"name":            "Weekly Review",
		"delay_ms":        60_000,
		"entry_selection": map[string]interface{}{"type": "all"},
		"entries_data":    entries,
		"passphrase":      "hunter2",
		"recipients": []map[string]string{
			{"channel": "email", "address": "a@example.com"},
			{"channel": "sms", "address": "+15550100"},
		},
	}
}

func TestRegisterAndVerify(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodGet, "/api/auth/verify", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestsWithoutKeyRejected(t *testing.T) {
	rig := newAPIRig(t)
	rig.apiKey = ""

	resp := rig.do(t, http.MethodGet, "/api/schedules", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = rig.do(t, http.MethodGet, "/api/auth/verify", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateScheduleValidation(t *testing.T) {
	rig := newAPIRig(t)

	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
	}{
		{"missing name", func(b map[string]interface{}) { delete(b, "name") }},
		{"no recipients", func(b map[string]interface{}) { b["recipients"] = []map[string]string{} }},
		{"bad channel", func(b map[string]interface{}) {
			b["recipients"] = []map[string]string{{"channel": "pigeon", "address": "x"}}
		}},
		{"negative delay", func(b map[string]interface{}) { b["delay_ms"] = -5 }},
		{"missing passphrase", func(b map[string]interface{}) { delete(b, "passphrase") }},
		{"specific selection without ids", func(b map[string]interface{}) {
			b["entry_selection"] = map[string]interface{}{"type": "specific"}
		}},
		{"zero matching entries", func(b map[string]interface{}) {
			b["entry_selection"] = map[string]interface{}{"type": "specific", "ids": []string{"ghost"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validCreateBody()
			tt.mutate(body)
			resp := rig.do(t, http.MethodPost, "/api/schedules", body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestCreateAndListSchedules(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)

	var created models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 5, created.EntryCount)
	assert.NotContains(t, resp.Body.String(), "hunter2", "passphrase never echoed")
	assert.NotContains(t, resp.Body.String(), "ciphertext")

	resp = rig.do(t, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var listed []models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestExecuteNow(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = rig.do(t, http.MethodPost, "/api/schedules/"+created.ID+"/execute", nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	require.Eventually(t, func() bool {
		resp := rig.do(t, http.MethodGet, "/api/schedules/"+created.ID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		var got models.Schedule
		if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Executed && len(got.Logs) == 1 &&
			got.Logs[0].Status == models.LogStatusSuccess &&
			got.Logs[0].RecipientsSent == 2
	}, 5*time.Second, 50*time.Millisecond)

	// A second manual execute of a consumed schedule conflicts.
	resp = rig.do(t, http.MethodPost, "/api/schedules/"+created.ID+"/execute", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = rig.do(t, http.MethodPut, "/api/schedules/"+created.ID,
		map[string]interface{}{"name": "Renamed"})
	require.Equal(t, http.StatusOK, resp.Code)
	var updated models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Name)

	resp = rig.do(t, http.MethodDelete, "/api/schedules/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = rig.do(t, http.MethodGet, "/api/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestScheduleNotVisibleAcrossOwners(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	// Second identity on the same server.
	firstKey := rig.apiKey
	rig.apiKey = ""
	reg := rig.do(t, http.MethodPost, "/api/auth/register", nil)
	require.Equal(t, http.StatusCreated, reg.Code)
	var other struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(reg.Body.Bytes(), &other))
	rig.apiKey = other.APIKey

	resp = rig.do(t, http.MethodGet, "/api/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	rig.apiKey = firstKey
}

func TestReset(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	before := time.Now()
	resp = rig.do(t, http.MethodPost, "/api/schedules/"+created.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var reset models.Schedule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &reset))
	assert.WithinDuration(t, before.Add(time.Minute), reset.ExecutionTime, 2*time.Second)
}

func TestHealth(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.do(t, http.MethodPost, "/api/schedules", validCreateBody())
	require.Equal(t, http.StatusCreated, resp.Code)

	health := rig.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, health.Code)
	var body struct {
		Status          string `json:"status"`
		Uptime          string `json:"uptime"`
		ActiveSchedules int64  `json:"activeSchedules"`
	}
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Uptime)
	assert.EqualValues(t, 1, body.ActiveSchedules)
}

package deliver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/journalpost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smsTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testMeta() Metadata {
	return Metadata{
		ScheduleName: "Weekly Review",
		EntryCount:   5,
		ExportedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Filename:     "journal-export-2025-06-01.pdf",
	}
}

func TestSMSDeliverAccepted(t *testing.T) {
	var got smsRequest
	srv := smsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/send", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(smsResponse{
			MessageID: 1, Recipient: got.Recipient, Status: "ACCEPTED", StatusCode: 200,
		})
	})

	adapter := NewSMSAdapter(srv.URL, "secret", "15550000", 5*time.Second)
	rcpt := models.Recipient{Channel: models.ChannelSMS, Address: "+15550100"}

	err := adapter.Deliver(context.Background(), rcpt, nil, testMeta())
	require.NoError(t, err)
	assert.Equal(t, "+15550100", got.Recipient)
	assert.Equal(t, "15550000", got.SrcNum)
	assert.Contains(t, got.Body, "Weekly Review")
	assert.Contains(t, got.Body, "5 entries")
}

func TestSMSDeliverRejected(t *testing.T) {
	srv := smsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(smsResponse{Status: "BLOCKED", StatusCode: 420})
	})

	adapter := NewSMSAdapter(srv.URL, "secret", "15550000", 5*time.Second)
	rcpt := models.Recipient{Channel: models.ChannelSMS, Address: "+15550100"}

	err := adapter.Deliver(context.Background(), rcpt, nil, testMeta())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLOCKED")
}

func TestSMSDeliverGatewayError(t *testing.T) {
	srv := smsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	adapter := NewSMSAdapter(srv.URL, "secret", "15550000", 5*time.Second)
	rcpt := models.Recipient{Channel: models.ChannelSMS, Address: "+15550100"}

	err := adapter.Deliver(context.Background(), rcpt, nil, testMeta())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSMSDeliverTimeout(t *testing.T) {
	srv := smsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	adapter := NewSMSAdapter(srv.URL, "secret", "15550000", 5*time.Second)
	rcpt := models.Recipient{Channel: models.ChannelSMS, Address: "+15550100"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := adapter.Deliver(ctx, rcpt, nil, testMeta())
	assert.Error(t, err, "a hung gateway becomes a per-recipient failure")
}

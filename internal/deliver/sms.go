package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/journalpost/internal/models"
)

// SMSAdapter sends a short export notice through an HTTP JSON gateway. The
// document itself is not transmissible over SMS; recipients get the schedule
// name and entry count.
type SMSAdapter struct {
	client        *http.Client
	gatewayDomain string
	apiKey        string
	sourceNumber  string
}

type smsRequest struct {
	SrcNum    string `json:"srcNum"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

type smsResponse struct {
	MessageID  int64  `json:"messageId"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

func NewSMSAdapter(gatewayDomain, apiKey, sourceNumber string, timeout time.Duration) *SMSAdapter {
	return &SMSAdapter{
		client:        &http.Client{Timeout: timeout},
		gatewayDomain: gatewayDomain,
		apiKey:        apiKey,
		sourceNumber:  sourceNumber,
	}
}

func (a *SMSAdapter) Channel() models.Channel { return models.ChannelSMS }

func (a *SMSAdapter) Deliver(ctx context.Context, rcpt models.Recipient, _ []byte, meta Metadata) error {
	message := fmt.Sprintf("Your journal export %q (%d entries) was generated on %s.",
		meta.ScheduleName, meta.EntryCount, meta.ExportedAt.Format("2006-01-02 15:04"))

	payload, err := json.Marshal(smsRequest{
		SrcNum:    a.sourceNumber,
		Recipient: rcpt.Address,
		Body:      message,
	})
	if err != nil {
		return fmt.Errorf("sms to %s: failed to marshal request: %w", rcpt.Address, err)
	}

	url := fmt.Sprintf("%s/api/v1/send", a.gatewayDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms to %s: failed to create request: %w", rcpt.Address, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms to %s: %w", rcpt.Address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms to %s: gateway returned status %d", rcpt.Address, resp.StatusCode)
	}

	var result smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("sms to %s: failed to decode response: %w", rcpt.Address, err)
	}
	if result.StatusCode != 200 || result.Status != "ACCEPTED" {
		return fmt.Errorf("sms to %s: delivery rejected: %s (%d)", rcpt.Address, result.Status, result.StatusCode)
	}
	return nil
}

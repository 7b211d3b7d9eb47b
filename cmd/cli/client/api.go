package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// Schedule mirrors the API's schedule resource for CLI display.
type Schedule struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ExecutionTime time.Time      `json:"execution_time"`
	EntryCount    int            `json:"entry_count"`
	Executed      bool           `json:"executed"`
	ExecutedAt    *time.Time     `json:"executed_at,omitempty"`
	Recipients    []Recipient    `json:"recipients"`
	Logs          []ExecutionLog `json:"logs,omitempty"`
}

type Recipient struct {
	Channel string `json:"channel"`
	Address string `json:"address"`
}

type ExecutionLog struct {
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	EntryCount     int        `json:"entry_count"`
	RecipientsSent int        `json:"recipients_sent"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Selection narrows which snapshot entries the export covers.
type Selection struct {
	Type  string     `json:"type"`
	IDs   []string   `json:"ids,omitempty"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// CreateScheduleRequest is the create payload. EntriesData carries the raw
// JSON entry snapshot exactly as read from disk.
type CreateScheduleRequest struct {
	Name           string          `json:"name"`
	DelayMS        int64           `json:"delay_ms"`
	EntrySelection Selection       `json:"entry_selection"`
	EntriesData    json.RawMessage `json:"entries_data"`
	Passphrase     string          `json:"passphrase"`
	Recipients     []Recipient     `json:"recipients"`
}

type Registration struct {
	UserID    string    `json:"user_id"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *APIClient) doRequest(method, path string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if key := viper.GetString("api-key"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return data, nil
}

func (c *APIClient) Register() (*Registration, error) {
	data, err := c.doRequest(http.MethodPost, "/api/auth/register", nil)
	if err != nil {
		return nil, err
	}
	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *APIClient) ListSchedules() ([]Schedule, error) {
	data, err := c.doRequest(http.MethodGet, "/api/schedules", nil)
	if err != nil {
		return nil, err
	}
	var scheds []Schedule
	if err := json.Unmarshal(data, &scheds); err != nil {
		return nil, err
	}
	return scheds, nil
}

func (c *APIClient) GetSchedule(id string) (*Schedule, error) {
	data, err := c.doRequest(http.MethodGet, "/api/schedules/"+id, nil)
	if err != nil {
		return nil, err
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (c *APIClient) CreateSchedule(req *CreateScheduleRequest) (*Schedule, error) {
	data, err := c.doRequest(http.MethodPost, "/api/schedules", req)
	if err != nil {
		return nil, err
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (c *APIClient) ExecuteSchedule(id, passphrase string) error {
	var body interface{}
	if passphrase != "" {
		body = map[string]string{"passphrase": passphrase}
	}
	_, err := c.doRequest(http.MethodPost, "/api/schedules/"+id+"/execute", body)
	return err
}

func (c *APIClient) ResetSchedule(id string) (*Schedule, error) {
	data, err := c.doRequest(http.MethodPost, "/api/schedules/"+id+"/reset", nil)
	if err != nil {
		return nil, err
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (c *APIClient) DeleteSchedule(id string) error {
	_, err := c.doRequest(http.MethodDelete, "/api/schedules/"+id, nil)
	return err
}

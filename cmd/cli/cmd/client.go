package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"worktrack/pkg/api"
)

// TrackClient handles API calls to the worktrack daemon.
type TrackClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewTrackClient creates a new client with the given base URL and token.
func NewTrackClient(baseURL, token string) *TrackClient {
	return &TrackClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a 2xx JSON response into out when out is non-nil.
func (c *TrackClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetStatus sends GET /v1/status.
func (c *TrackClient) GetStatus() (*api.StatusResponse, error) {
	var result api.StatusResponse
	if err := c.do(http.MethodGet, "/v1/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Start sends POST /v1/start, or POST /v1/restart when restart is set.
func (c *TrackClient) Start(restart bool) (*api.JobsResponse, error) {
	path := "/v1/start"
	if restart {
		path = "/v1/restart"
	}
	var result api.JobsResponse
	if err := c.do(http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReloadJobs sends PUT /v1/jobs.
func (c *TrackClient) ReloadJobs() (*api.JobsResponse, error) {
	var result api.JobsResponse
	if err := c.do(http.MethodPut, "/v1/jobs", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Action sends a POST to one of the command endpoints such as /v1/cancel.
func (c *TrackClient) Action(path string) (*api.ActionResponse, error) {
	var result api.ActionResponse
	if err := c.do(http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ManualStart sends POST /v1/manual/start.
func (c *TrackClient) ManualStart(jobID string) (*api.ActionResponse, error) {
	var result api.ActionResponse
	if err := c.do(http.MethodPost, "/v1/manual/start", api.ManualStartRequest{JobID: jobID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ForceStop sends POST /v1/force-stop.
func (c *TrackClient) ForceStop() (*api.ForceStopResponse, error) {
	var result api.ForceStopResponse
	if err := c.do(http.MethodPost, "/v1/force-stop", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PushLocation sends POST /v1/location.
func (c *TrackClient) PushLocation(req api.LocationRequest) (*api.LocationResponse, error) {
	var result api.LocationResponse
	if err := c.do(http.MethodPost, "/v1/location", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetPermission sends PUT /v1/location/permission.
func (c *TrackClient) SetPermission(granted bool) error {
	return c.do(http.MethodPut, "/v1/location/permission", api.PermissionRequest{Granted: granted}, nil)
}

// Geofence sends GET /v1/geofence, or POST /v1/geofence/check when check is set.
func (c *TrackClient) Geofence(check bool) (*api.GeofenceResponse, error) {
	method, path := http.MethodGet, "/v1/geofence"
	if check {
		method, path = http.MethodPost, "/v1/geofence/check"
	}
	var result api.GeofenceResponse
	if err := c.do(method, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRecords sends GET /v1/records for a job.
func (c *TrackClient) ListRecords(jobID string, limit int) ([]api.WorkRecord, error) {
	q := url.Values{}
	q.Set("job_id", jobID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result api.WorkRecordsResponse
	if err := c.do(http.MethodGet, "/v1/records?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Records, nil
}

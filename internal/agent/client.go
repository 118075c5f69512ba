package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotPrintable means the server answered 400 to print-info: the job is
// known but not at the print head.
var ErrNotPrintable = errors.New("job is not at the print head")

// Client is the thin HTTP wrapper over the server's agent surface. The API
// key scopes every call to one printer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type HeartbeatResponse struct {
	PrinterID  string `json:"printer_id"`
	ServerTime string `json:"server_time"`
}

type JobInfo struct {
	ID        int64  `json:"id"`
	JobName   string `json:"job_name"`
	EventName string `json:"event_name"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	Copies    int    `json:"copies"`
}

type jobsResponse struct {
	Jobs  []*JobInfo `json:"jobs"`
	Count int        `json:"count"`
}

type PrintInfo struct {
	JobID         int64  `json:"job_id"`
	HotFolderPath string `json:"hot_folder_path"`
	Filename      string `json:"filename"`
}

type QueueStatusResponse struct {
	PrinterID string         `json:"printer_id"`
	Counts    map[string]int `json:"counts"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Heartbeat() (*HeartbeatResponse, error) {
	var out HeartbeatResponse
	if err := c.do("POST", "/api/agent/heartbeat", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReadyJobs() ([]*JobInfo, error) {
	var out jobsResponse
	if err := c.do("GET", "/api/agent/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// DownloadJob streams the composed PDF. The caller must close the body.
func (c *Client) DownloadJob(jobID int64) (io.ReadCloser, error) {
	req, err := c.newRequest("GET", fmt.Sprintf("/api/agent/jobs/%d/download", jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return resp.Body, nil
}

func (c *Client) MarkDownloaded(jobID int64) error {
	return c.do("POST", fmt.Sprintf("/api/agent/jobs/%d/mark-downloaded", jobID), nil, nil)
}

func (c *Client) PrintInfo(jobID int64) (*PrintInfo, error) {
	req, err := c.newRequest("GET", fmt.Sprintf("/api/agent/jobs/%d/print-info", jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, ErrNotPrintable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("print-info failed: %s", resp.Status)
	}

	var out PrintInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmSent(jobID int64) error {
	return c.do("POST", fmt.Sprintf("/api/agent/jobs/%d/confirm-sent", jobID), nil, nil)
}

func (c *Client) QueueStatus() (*QueueStatusResponse, error) {
	var out QueueStatusResponse
	if err := c.do("GET", "/api/agent/queue-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(method, path string, body, out interface{}) error {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

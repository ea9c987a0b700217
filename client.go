package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/borgmon/alarm-clock/pkg/api"
)

// apiClient drives a running daemon through its command API
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(listen string) *apiClient {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return &apiClient{
		base: "http://" + host + "/api/v1",
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type importResult struct {
	Imported int    `json:"imported"`
	Found    int    `json:"found"`
	Error    string `json:"error"`
}

func (c *apiClient) listAlarms(ctx context.Context) ([]api.AlarmRecord, error) {
	var records []api.AlarmRecord
	body, err := c.do(ctx, http.MethodGet, "/alarms", "", nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode alarm list: %w", err)
	}
	return records, nil
}

func (c *apiClient) exportCalendar(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/calendar.ics", "", nil)
}

// importCalendar sends a local file as the request body and lets the daemon
// fetch URLs itself
func (c *apiClient) importCalendar(ctx context.Context, source string) (*importResult, error) {
	var (
		body []byte
		err  error
	)
	path := "/calendar"
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		path += "?source=" + url.QueryEscape(source)
	} else {
		body, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read calendar file: %w", err)
		}
	}

	resp, err := c.do(ctx, http.MethodPost, path, "text/calendar", body)
	if err != nil {
		return nil, err
	}
	var result importResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode import result: %w", err)
	}
	return &result, nil
}

func (c *apiClient) ringControl(ctx context.Context, action, uid string) error {
	path := "/" + action
	if uid != "" {
		path += "?uid=" + url.QueryEscape(uid)
	}
	_, err := c.do(ctx, http.MethodPost, path, "", nil)
	return err
}

func (c *apiClient) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alarm clock not reachable (is it running?): %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, errors.New(apiErr.Error)
		}
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}
	return data, nil
}

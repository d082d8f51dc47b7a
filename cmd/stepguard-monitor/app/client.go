package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	httpserver "github.com/autopeer-io/stepguard/internal/monitor/server/http"
)

// apiClient talks to the HTTP API of a running monitor.
type apiClient struct {
	Server  string
	Timeout time.Duration

	http *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		Server:  "http://127.0.0.1:8080",
		Timeout: 10 * time.Second,
	}
}

func (c *apiClient) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Server, "server", "s", c.Server, "Base URL of the monitor HTTP API.")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Request timeout.")
}

func (c *apiClient) client() *http.Client {
	if c.http == nil {
		c.http = &http.Client{Timeout: c.Timeout}
	}
	return c.http
}

func (c *apiClient) ListDevices(ctx context.Context) (*httpserver.DeviceList, error) {
	var list httpserver.DeviceList
	if err := c.do(ctx, http.MethodGet, "/api/v1/devices", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *apiClient) RenameDevice(ctx context.Context, id, name string) (*httpserver.DeviceResponse, error) {
	var d httpserver.DeviceResponse
	path := "/api/v1/devices/" + url.PathEscape(id) + "/name"
	if err := c.do(ctx, http.MethodPut, path, httpserver.RenameRequest{Name: name}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.Server, "/")+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

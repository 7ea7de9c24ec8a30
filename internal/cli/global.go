package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ServerUrl string
	Timeout   time.Duration
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ServerUrl: "http://localhost:3443",
		Timeout:   30 * time.Second,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Request timeout")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if _, err := url.Parse(o.ServerUrl); err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	return nil
}

func (o *GlobalOptions) Client() *Client {
	return &Client{
		serverUrl:  strings.TrimSuffix(o.ServerUrl, "/"),
		httpClient: &http.Client{Timeout: o.Timeout},
	}
}

// Client calls the project endpoints of the trainer api.
type Client struct {
	serverUrl  string
	httpClient *http.Client
}

// Response is the decoded body of an api call.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// Failed reports the log of a failed call.
func (r *Response) Failed() error {
	if r.StatusCode < http.StatusBadRequest {
		return nil
	}
	if log, ok := r.Body["log"].(string); ok && log != "" {
		return fmt.Errorf("%d: %s", r.StatusCode, log)
	}
	return fmt.Errorf("%d", r.StatusCode)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	u := c.serverUrl + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func projectPath(id fmt.Stringer, endpoint string) string {
	return fmt.Sprintf("/api/v1/projects/%s/%s", id, endpoint)
}

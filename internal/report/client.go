// Package report delivers the final outcome record to the host agent.
// The guest is unreachable for polling once the run ends, so this call
// is the only way the host learns the run is over.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/roost-sandbox/roost/internal/model"
)

const (
	completePath = "complete"
	contentType  = "application/json"

	// the host answers immediately, anything longer means it is gone
	requestTimeout = 30 * time.Second
)

// Client posts the outcome record to the host agent. Complete fires at
// most once per process regardless of how many exit paths reach it,
// there is exactly one definitive report per run.
type Client struct {
	requestURL *url.URL
	client     *http.Client
	once       sync.Once
}

func NewClient(agentURL string) (*Client, error) {
	parsedURL, err := url.Parse(agentURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("agent url needs a scheme and a host, e.g. `http://127.0.0.1:8000`")
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/") + "/" + completePath

	c := &Client{
		requestURL: parsedURL,
		client:     &http.Client{Timeout: requestTimeout},
	}
	return c, nil
}

// Complete reports outcome to the host. Only the first call does the
// request, later calls are ignored. There is no retry: when the report
// itself fails the condition is unrecoverable and only logged.
func (c *Client) Complete(ctx context.Context, outcome model.Outcome) error {
	var err error
	c.once.Do(func() {
		err = c.post(ctx, outcome)
	})
	if err != nil {
		slog.ErrorContext(ctx, "reporting completion to the host failed", "error", err)
	}
	return err
}

func (c *Client) post(ctx context.Context, outcome model.Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("host agent refused completion, status: %d, body: %s", resp.StatusCode, string(body))
	}

	slog.DebugContext(ctx, "completion reported",
		slog.Bool("success", outcome.Success),
		slog.String("path", outcome.ResultsPath))
	return nil
}

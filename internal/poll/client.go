// Package poll talks to the polling backend: it POSTs a report payload as
// JSON and decodes the reply into a Result.
package poll

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"manual-polling-tool/internal/util"
)

// DefaultMaxBodyBytes caps how much of a backend reply is read.
const DefaultMaxBodyBytes = 64 << 20

// Client is a minimal polling backend client.
//
// The console only needs one call: POST <endpoint> with the report payload.
type Client struct {
	BaseURL      *url.URL
	HTTP         *http.Client
	MaxBodyBytes int64
}

// NewClient constructs a client for the backend at base. A zero timeout
// leaves requests unbounded; cancellation then comes only from the context.
func NewClient(base string, timeout time.Duration, maxBodyBytes int64) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", base)
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		BaseURL:      u,
		HTTP:         &http.Client{Timeout: timeout},
		MaxBodyBytes: maxBodyBytes,
	}, nil
}

// Resolve turns a form-configured endpoint into an absolute URL.
func (c *Client) Resolve(endpoint string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	return c.BaseURL.ResolveReference(ref).String(), nil
}

// Poll sends payload to endpoint and decodes the reply.
//
// Any failure is returned as *Error; its message is what the console shows.
func (c *Client) Poll(ctx context.Context, endpoint string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	buf, err := readAllLimit(resp.Body, c.MaxBodyBytes)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	decoded, decodeErr := util.DecodeJSON(buf)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("Server responded with status %d", resp.StatusCode)
		if decodeErr == nil {
			if m, ok := errorMessage(decoded); ok {
				msg = m
			}
		}
		return nil, &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, &Error{
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			Message:    "invalid JSON response: " + decodeErr.Error(),
			Err:        decodeErr,
		}
	}
	if m, ok := errorMessage(decoded); ok {
		return nil, &Error{Kind: KindBackend, StatusCode: resp.StatusCode, Message: m}
	}

	return &Result{
		Body:       json.RawMessage(buf),
		Rows:       CountRows(decoded),
		StatusCode: resp.StatusCode,
		Size:       int64(len(buf)),
	}, nil
}

func errorMessage(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m["error"].(string)
	return s, ok && s != ""
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	_, err := io.CopyN(buf, r, max+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(buf.Len()) > max {
		return nil, fmt.Errorf("response exceeds %d bytes", max)
	}
	return buf.Bytes(), nil
}

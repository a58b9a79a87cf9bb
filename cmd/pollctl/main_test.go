package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// scripted answers prompts from fixed maps and records what it was asked.
type scripted struct {
	inputs  map[string]string
	multi   map[string][]string
	asked   []string
	offered map[string]string
}

func (s *scripted) Input(_ context.Context, message, def, _ string) (string, error) {
	s.asked = append(s.asked, message)
	if s.offered == nil {
		s.offered = map[string]string{}
	}
	s.offered[message] = def
	if v, ok := s.inputs[message]; ok {
		return v, nil
	}
	return def, nil
}

func (s *scripted) Password(_ context.Context, message, _ string) (string, error) {
	s.asked = append(s.asked, message)
	return s.inputs[message], nil
}

func (s *scripted) Select(_ context.Context, message string, options []string, def string) (string, error) {
	s.asked = append(s.asked, message)
	if v, ok := s.inputs[message]; ok {
		return v, nil
	}
	return def, nil
}

// MultiSelect fails on empty options the same way survey does.
func (s *scripted) MultiSelect(_ context.Context, message string, options, defaults []string) ([]string, error) {
	s.asked = append(s.asked, message)
	if len(options) == 0 {
		return nil, errors.New("please provide options to select from")
	}
	if v, ok := s.multi[message]; ok {
		return v, nil
	}
	return defaults, nil
}

type capture struct {
	mu   sync.Mutex
	path string
	body map[string]any
}

func (c *capture) get() (string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.body
}

func newBackend(t *testing.T, status int, reply string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.path = r.URL.Path
		_ = json.Unmarshal(raw, &c.body)
		c.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestRunInteractive(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `{"data":[{"day":"2024-05-01"}]}`)
	dir := t.TempDir()

	p := &scripted{
		inputs: map[string]string{"Report Key": "rk-1", "Start Date": "2024-05-01"},
		multi:  map[string][]string{"Dimensions": {"day", "country"}, "Metrics": {"revenue"}},
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		backend:  srv.URL,
		provider: "applovin",
		outDir:   dir,
		lookback: 7,
	}, p, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if diff := cmp.Diff([]string{"Report Key", "Start Date", "End Date", "Dimensions", "Metrics"}, p.asked); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}
	if p.offered["End Date"] == "" {
		t.Error("end date prompt should offer the seeded date")
	}

	path, body := got.get()
	if path != "/api/poll/applovin" {
		t.Errorf("path = %q", path)
	}
	if body["api_key"] != "rk-1" || body["start_date"] != "2024-05-01" {
		t.Errorf("payload = %v", body)
	}
	if diff := cmp.Diff([]any{"day", "country"}, body["dimensions"]); diff != "" {
		t.Errorf("dimensions (-want +got):\n%s", diff)
	}

	if !strings.Contains(stdout.String(), "Polling successful! Fetched 1 rows.") {
		t.Errorf("stdout = %s", stdout.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "applovin_report.json"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"data\": [") {
		t.Errorf("report = %s", data)
	}
}

func TestRunInteractiveSkipsEmptyMetricList(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `[{"date":"2024-05-01"}]`)
	dir := t.TempDir()

	p := &scripted{inputs: map[string]string{"API Key": "hk", "App ID": "app-1"}}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		backend:  srv.URL,
		provider: "hyprmx",
		outDir:   dir,
		lookback: 7,
	}, p, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if diff := cmp.Diff([]string{"API Key", "App ID", "Start Date", "End Date", "Dimensions"}, p.asked); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}

	_, body := got.get()
	if diff := cmp.Diff([]any{"date", "placement", "country"}, body["dimensions"]); diff != "" {
		t.Errorf("dimensions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{}, body["metrics"]); diff != "" {
		t.Errorf("metrics (-want +got):\n%s", diff)
	}
	if !strings.Contains(stdout.String(), "Polling successful! Fetched 1 rows.") {
		t.Errorf("stdout = %s", stdout.String())
	}
}

func TestRunNoInputWithOverrides(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `[]`)
	dir := t.TempDir()

	p := &scripted{}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		backend:  srv.URL,
		provider: "applovin",
		outDir:   dir,
		lookback: 7,
		noInput:  true,
		sets:     []string{"api_key=from-flag"},
	}, p, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if len(p.asked) != 0 {
		t.Errorf("no prompts expected, got %v", p.asked)
	}
	_, body := got.get()
	if body["api_key"] != "from-flag" {
		t.Errorf("payload = %v", body)
	}
	dims, _ := body["dimensions"].([]any)
	if len(dims) != 8 {
		t.Errorf("all dimensions should be sent by default, got %v", body["dimensions"])
	}
}

func TestRunBackendFailure(t *testing.T) {
	srv, _ := newBackend(t, http.StatusInternalServerError, `{"error":"bad key"}`)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		backend:  srv.URL,
		provider: "applovin",
		outDir:   dir,
		noInput:  true,
		sets:     []string{"api_key=x"},
	}, &scripted{}, &stdout, &stderr)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "Polling failed: bad key") {
		t.Errorf("stdout = %s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "applovin_report.json")); !os.IsNotExist(err) {
		t.Error("no report should be written on failure")
	}
}

func TestRunUnknownProvider(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{backend: "http://127.0.0.1:1", provider: "unity", noInput: true},
		&scripted{}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown provider") {
		t.Errorf("stderr = %s", stderr.String())
	}
}

func TestRunPromptsForProvider(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, `[]`)
	p := &scripted{inputs: map[string]string{"Provider": "inmobi"}}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{backend: srv.URL, outDir: t.TempDir(), noInput: true},
		p, &stdout, &stderr)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diff := cmp.Diff([]string{"Provider"}, p.asked); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}
	if !strings.Contains(stdout.String(), "Polling failed: missing required field: Username") {
		t.Errorf("stdout = %s", stdout.String())
	}
	if path, _ := got.get(); path != "" {
		t.Errorf("backend should not be called without required fields, got %q", path)
	}
}

func TestApplyOverridesErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		backend:  "http://127.0.0.1:1",
		provider: "applovin",
		noInput:  true,
		sets:     []string{"nope"},
	}, &scripted{}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "want key=value") {
		t.Errorf("code = %d, stderr = %s", code, stderr.String())
	}
}

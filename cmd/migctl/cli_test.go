package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func runCommand(
	t *testing.T,
	serverURL string,
	args ...string,
) (string, error) {
	t.Helper()

	c := newCLI()

	command := c.rootCmd()

	var out bytes.Buffer

	command.SetOut(&out)
	command.SetErr(&out)
	command.SetArgs(append(args, "--server-url", serverURL))

	err := command.Execute()

	return out.String(), err
}

func TestStartCommand(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/start" || r.Method != http.MethodPost {
				t.Errorf(
					"expected POST /api/start: got %s %s",
					r.Method,
					r.URL.Path,
				)
			}

			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("expected not to receive error: got '%v'", err)
			}

			json.NewEncoder(w).Encode(actionResponse{
				Status:  "started",
				Message: "Migration started",
			})
		},
	))
	defer ts.Close()

	out, err := runCommand(t, ts.URL, "start", "/mnt/old", "/mnt/new")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if gotBody["source"] != "/mnt/old" || gotBody["target"] != "/mnt/new" {
		t.Errorf("expected endpoints in request body: got %v", gotBody)
	}

	if !strings.Contains(out, "Migration started") {
		t.Errorf("expected confirmation message: got '%s'", out)
	}
}

func TestStartCommandSurfacesConflict(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error": "a migration job is already active"}`)
		},
	))
	defer ts.Close()

	_, err := runCommand(t, ts.URL, "start", "/mnt/old", "/mnt/new")
	if err == nil {
		t.Fatal("expected an error for a conflicting start")
	}

	if !strings.Contains(err.Error(), "already active") {
		t.Errorf("expected the server's error message: got '%v'", err)
	}
}

func TestStopCommand(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/stop" {
				t.Errorf("expected /api/stop: got '%s'", r.URL.Path)
			}

			json.NewEncoder(w).Encode(actionResponse{
				Status:  "stopping",
				Message: "Migration is being stopped",
			})
		},
	))
	defer ts.Close()

	out, err := runCommand(t, ts.URL, "stop")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if !strings.Contains(out, "stopped") {
		t.Errorf("expected confirmation message: got '%s'", out)
	}
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(
				w,
				`{"status": {"state": "running", "source": "/mnt/old", "target": "/mnt/new", "start_time": %q}}`,
				started.Format(time.RFC3339),
			)
		},
	))
	defer ts.Close()

	out, err := runCommand(t, ts.URL, "status")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	for _, want := range []string{"STATE", "running", "/mnt/old", "/mnt/new"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain '%s': got '%s'", want, out)
		}
	}
}

func TestWatchCommandPrintsEvents(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")

			now := time.Now().Format(time.RFC3339Nano)

			fmt.Fprintf(w, "data: {\"type\": \"heartbeat\", \"timestamp\": %q}\n\n", now)
			fmt.Fprintf(w, "data: {\"type\": \"progress\", \"message\": \"copying block 1\", \"timestamp\": %q}\n\n", now)
			fmt.Fprintf(w, "data: {\"type\": \"error\", \"message\": \"disk full\", \"timestamp\": %q}\n\n", now)
		},
	))
	defer ts.Close()

	out, err := runCommand(t, ts.URL, "watch")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if strings.Contains(out, "heartbeat") {
		t.Errorf("expected heartbeats to be hidden by default: got '%s'", out)
	}

	for _, want := range []string{"copying block 1", "disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain '%s': got '%s'", want, out)
		}
	}
}

package amcctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunAdvertisersCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"advertisers":[{"instance_id":1,"name":"Acme"}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--api-key", "k1",
		"advertisers",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/advertisers" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"name": "Acme"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunChatNewSendsScope(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chats" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"chat":{"chat_id":"c1"}}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"--base-url", srv.URL, "chat", "new",
		"--advertiser", "Acme", "--start", "2024-06-01", "--end", "2024-06-30",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	advertisers, _ := body["advertisers"].([]any)
	if len(advertisers) != 1 || advertisers[0] != "Acme" || body["start_date"] != "2024-06-01" {
		t.Fatalf("body = %#v", body)
	}
}

func TestRunAskJoinsQuestion(t *testing.T) {
	var gotPath, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotText = req["text"]
		_, _ = w.Write([]byte(`{"answer":{"content":"ok"}}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "c1", "Show", "Time", "to", "Conversion"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/chats/c1/messages" || gotText != "Show Time to Conversion" {
		t.Fatalf("path = %q text = %q", gotPath, gotText)
	}
}

func TestRunExportWritesFile(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Export-URL", "https://objects.example.com/x.csv")
		_, _ = io.WriteString(w, "a,b\n1,2\n")
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "turn.csv")
	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "export", "c1", "t2", "--format", "csv", "-o", out}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotQuery != "format=csv" {
		t.Fatalf("query = %q", gotQuery)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "a,b\n1,2\n" {
		t.Fatalf("file = %q, %v", data, err)
	}
	if !strings.Contains(stdout.String(), "archived copy: https://objects.example.com/x.csv") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunDatasetsShowSendsFilters(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"dataset":{"table":"ads_report"}}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "datasets", "show", "ads_report", "--advertiser", "Acme Corp", "--limit", "250"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/datasets/ads_report" || gotQuery != "advertiser=Acme+Corp&limit=250" {
		t.Fatalf("path = %q query = %q", gotPath, gotQuery)
	}
	if !strings.Contains(stdout.String(), `"table": "ads_report"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}

	code = Run(context.Background(), []string{"--base-url", srv.URL, "datasets", "list"}, Options{})
	if code != 0 || gotPath != "/v1/datasets" {
		t.Fatalf("list exit code = %d path = %q", code, gotPath)
	}
	if code := Run(context.Background(), []string{"--base-url", srv.URL, "datasets", "show", "ads_report", "--limit=-5"}, Options{}); code != 2 {
		t.Fatalf("negative limit exit code = %d", code)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "chat", "list"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {}, {"ask", "c1"}} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}

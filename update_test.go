package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.4", "1.2.3", 1},
		{"1.2", "1.2.0", 0},
		{"2.0.0", "10.0.0", -1},
		{"1.3.0-beta", "1.2.9", 1},
		{"v1.3.0", "1.3.0", 0},
		{"1.3.0-beta", "1.3.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := compareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCheckForUpdate(t *testing.T) {
	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, `{"tag_name":"v1.1.0","html_url":"https://example.invalid"}`)
	}))
	defer srv.Close()

	tag, available, err := CheckForUpdate(context.Background(), "1.0.0", srv.URL)
	if err != nil {
		t.Fatalf("CheckForUpdate() error = %v", err)
	}
	if tag != "v1.1.0" || !available {
		t.Errorf("CheckForUpdate() = (%q, %v), want (v1.1.0, true)", tag, available)
	}

	_, available, err = CheckForUpdate(context.Background(), "v1.1.0", srv.URL)
	if err != nil || available {
		t.Errorf("same version should not report an update, got available=%v err=%v", available, err)
	}

	for _, want := range []string{"vantage/1.0.0", "vantage/v1.1.0"} {
		if got := <-agents; got != want {
			t.Errorf("User-Agent = %q, want %q", got, want)
		}
	}
}

func TestCheckForUpdateDevBuild(t *testing.T) {
	tag, available, err := CheckForUpdate(context.Background(), "dev", "http://127.0.0.1:1")
	if err != nil || available || tag != "" {
		t.Errorf("dev build should skip the check, got (%q, %v, %v)", tag, available, err)
	}
}

func TestCheckForUpdateBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, _, err := CheckForUpdate(context.Background(), "1.0.0", srv.URL); err == nil {
		t.Error("expected an error for non-200 status")
	}
}

package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"Hello \xff World", "Hello  World"},
		{"강아지 유치원", "강아지 유치원"},
	}

	for _, tt := range tests {
		got := SanitizeUTF8(tt.input)
		if got != tt.expected {
			t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetBaseDomain(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://google.com", "google.com"},
		{"https://blog.google.co.uk/path", "google.co.uk"},
		{"http://localhost:8080", "localhost"},
		{"https://www.dogcare.co.kr/menu", "dogcare.co.kr"},
		{"invalid-url", ""},
	}

	for _, tt := range tests {
		got, _ := GetBaseDomain(tt.url)
		if got != tt.expected {
			t.Errorf("GetBaseDomain(%q) = %q, want %q", tt.url, got, tt.expected)
		}
	}
}

func TestSameSite(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.com", "https://www.example.com/menu", true},
		{"https://example.com", "https://other.com/menu", false},
		{"https://a.dogcare.co.kr", "https://b.dogcare.co.kr", true},
		{"mailto:x@example.com", "https://example.com", false},
	}
	for _, tt := range tests {
		if got := SameSite(tt.a, tt.b); got != tt.want {
			t.Errorf("SameSite(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"127.0.0.1", true},
		{"192.168.1.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"8.8.8.8", false},
		{"::1", true},
		{"fc00::1", true},
		{"fdff:ffff:ffff:ffff:ffff:ffff:ffff:ffff", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		got := IsPrivateIP(net.ParseIP(tt.ip))
		if got != tt.expected {
			t.Errorf("IsPrivateIP(%q) = %v, want %v", tt.ip, got, tt.expected)
		}
	}
}

func TestNewSafeHTTPClient(t *testing.T) {
	cfg := ClientConfig{
		Timeout:       2 * time.Second,
		AllowInternal: false,
	}
	client := NewSafeHTTPClient(cfg)

	if client.Timeout != cfg.Timeout {
		t.Errorf("Expected timeout %v, got %v", cfg.Timeout, client.Timeout)
	}

	_, err := client.Get("http://127.0.0.1")
	if err == nil {
		t.Error("Expected error for private IP access, got nil")
	} else {
		if !strings.Contains(err.Error(), "blocked connection to private IP") {
			t.Errorf("Expected SSRF protection error, got: %v", err)
		}
		if !errors.Is(err, core.ErrBlockedAddress) {
			t.Errorf("Expected ErrBlockedAddress in chain, got: %v", err)
		}
	}

	transport := client.Transport.(*http.Transport)
	_, err = transport.DialContext(context.Background(), "tcp", "invalid-addr")
	if err == nil {
		t.Error("Expected error for invalid address, got nil")
	}

	_, err = transport.DialContext(context.Background(), "tcp", "nonexistent.domain.invalid:80")
	if err == nil {
		t.Error("Expected error for nonexistent domain, got nil")
	}
}

func TestNewSafeHTTPClient_Redirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	t.Run("Returned To Caller", func(t *testing.T) {
		client := NewSafeHTTPClient(ClientConfig{AllowInternal: true})
		resp, err := client.Get(ts.URL + "/old")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMovedPermanently {
			t.Errorf("expected 301, got %d", resp.StatusCode)
		}
	})

	t.Run("Followed", func(t *testing.T) {
		client := NewSafeHTTPClient(ClientConfig{AllowInternal: true, FollowRedirects: true})
		resp, err := client.Get(ts.URL + "/old")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})
}

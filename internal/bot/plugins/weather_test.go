package plugins

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWeather(t *testing.T) {
	var gotPath, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("format")
		fmt.Fprintln(w, "Berlin: ⛅️ +18°C")
	}))
	defer server.Close()

	p := NewWeather()
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "weather", "weather Berlin", "@a:x", "!r:x", time.Now())
	if msg.Body != "Berlin: ⛅️ +18°C" {
		t.Errorf("Unexpected reply: %q", msg.Body)
	}
	if gotPath != "/Berlin" {
		t.Errorf("Unexpected request path: %s", gotPath)
	}
	if gotFormat != "3" {
		t.Errorf("Expected format=3, got %q", gotFormat)
	}
}

func TestWeatherEscapesLocation(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprintln(w, "New York: rain")
	}))
	defer server.Close()

	p := NewWeather()
	p.baseURL = server.URL

	p.Handle(context.Background(), "weather", "weather New York", "@a:x", "!r:x", time.Now())
	if gotPath != "/New%20York" {
		t.Errorf("Expected escaped path, got %s", gotPath)
	}
}

func TestWeatherUsage(t *testing.T) {
	p := NewWeather()
	msg := p.Handle(context.Background(), "weather", "weather", "@a:x", "!r:x", time.Now())
	if msg.Body != "Usage: weather <location>" {
		t.Errorf("Expected usage message, got %q", msg.Body)
	}
}

func TestWeatherServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewWeather()
	p.baseURL = server.URL

	msg := p.Handle(context.Background(), "weather", "weather Berlin", "@a:x", "!r:x", time.Now())
	if !strings.Contains(msg.Body, "Could not fetch the weather") {
		t.Errorf("Expected an error reply, got %q", msg.Body)
	}
}

package plugins

import (
	"context"
	"testing"
	"time"
)

func TestRot13(t *testing.T) {
	p := NewRot13()

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "lowercase", message: "rot13 hello", want: "uryyb"},
		{name: "mixed case", message: "rot13 Hello, World!", want: "Uryyb, Jbeyq!"},
		{name: "involution", message: "rot13 uryyb", want: "hello"},
		{name: "digits untouched", message: "rot13 abc123", want: "nop123"},
		{name: "unicode untouched", message: "rot13 grüße", want: "teüßr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := p.Handle(context.Background(), "rot13", tt.message, "@a:x", "!r:x", time.Now())
			if msg.Body != tt.want {
				t.Errorf("Handle(%q) = %q, want %q", tt.message, msg.Body, tt.want)
			}
		})
	}
}

func TestRot13Usage(t *testing.T) {
	p := NewRot13()
	msg := p.Handle(context.Background(), "rot13", "rot13", "@a:x", "!r:x", time.Now())
	if msg.Body != "Usage: rot13 <text>" {
		t.Errorf("Expected usage message, got %q", msg.Body)
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rot13 hello world", "hello world"},
		{"rot13", ""},
		{"rot13   ", ""},
		{"  rot13  spaced  ", "spaced"},
		{"rot13\ttabbed", "tabbed"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := args(tt.in); got != tt.want {
			t.Errorf("args(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package service_test

import (
	"testing"

	"veloj/internal/judge/service"
)

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"bare cr", "a\rb\r", "a\nb"},
		{"trailing spaces per line", "a  \nb\t\n", "a\nb"},
		{"trailing blank lines", "a\n\n\n", "a"},
		{"leading whitespace kept", "  a\n\tb\n", "  a\n\tb"},
		{"interior blank line kept", "a\n\nb\n", "a\n\nb"},
		{"case preserved", "Hello\n", "Hello"},
		{"empty", "", ""},
		{"only whitespace", " \n\t\n\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.NormalizeOutput(tt.in); got != tt.want {
				t.Fatalf("NormalizeOutput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutputsEqual(t *testing.T) {
	if !service.OutputsEqual("1 2 3\r\n", "1 2 3") {
		t.Fatal("CRLF output should match LF expectation")
	}
	if !service.OutputsEqual("42  \n\n", "42\n") {
		t.Fatal("trailing whitespace should not affect comparison")
	}
	if service.OutputsEqual("1  2", "1 2") {
		t.Fatal("interior whitespace is significant")
	}
	if service.OutputsEqual("hello", "Hello") {
		t.Fatal("comparison is case sensitive")
	}
}

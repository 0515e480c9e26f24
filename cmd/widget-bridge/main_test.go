package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/widget-bridge:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	for _, word := range []string{"invoke", "context", "watch", "emit", "methods", "BRIDGE_TRANSPORT", "WIDGET_ID"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseJSONArg(t *testing.T) {
	tests := map[string]string{
		`"key1"`:      `"key1"`,
		`42`:          `42`,
		`{"a":1}`:     `{"a":1}`,
		`key1`:        `"key1"`,
		`hello world`: `"hello world"`,
	}
	for in, want := range tests {
		got, err := parseJSONArg(in)
		if err != nil {
			t.Fatalf("%s - parseJSONArg(%q): %v", mainTestPrefix, in, err)
		}
		if string(got) != want {
			t.Errorf("%s - parseJSONArg(%q) = %s, want %s", mainTestPrefix, in, got, want)
		}
	}
}

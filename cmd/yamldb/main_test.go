package main

import "testing"

func TestNormalizeLevel(t *testing.T) {
	cases := map[string]string{
		"warn":  "warning",
		"WARN":  "warning",
		"info":  "info",
		"debug": "debug",
		"trace": "trace",
		" ERROR ": "error",
	}
	for in, want := range cases {
		if got := normalizeLevel(in); got != want {
			t.Errorf("normalizeLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

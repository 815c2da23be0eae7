package main

import (
	"bytes"
	"strings"
	"testing"
)

// captureOutput redirects the helpers into a buffer for one test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevNoColor := out, noColor
	out = &buf
	t.Cleanup(func() { out, noColor = prev, prevNoColor })
	return &buf
}

func TestPaintRespectsNoColor(t *testing.T) {
	prev := noColor
	t.Cleanup(func() { noColor = prev })

	noColor = false
	if got := paint(ansiGreen, "ok"); got != ansiGreen+"ok"+ansiReset {
		t.Errorf("paint = %q", got)
	}

	noColor = true
	if got := paint(ansiGreen, "ok"); got != "ok" {
		t.Errorf("paint with no-color = %q, want bare text", got)
	}
}

func TestPrintHelperPrefixes(t *testing.T) {
	buf := captureOutput(t)
	noColor = true

	printSuccess("stored %d", 3)
	printError("broke")
	printWarning("careful")
	printStep("indexing")
	printStatus("task", "call %s", "dentist")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"✓ stored 3",
		"✗ broke",
		"⚠ careful",
		"→ indexing",
		"  task: call dentist",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

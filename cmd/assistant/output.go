package main

import (
	"fmt"
	"io"
	"os"
)

// Human-facing output goes to stderr: stdout belongs to the MCP stdio
// transport while the server is running.
var out io.Writer = os.Stderr

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func paint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(out, paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(out, paint(ansiRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(out, paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(out, paint(ansiCyan, "→ "+fmt.Sprintf(format, args...)))
}

// printStatus renders an indented "label: value" line with the label in
// bold, used for listing search results.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(out, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

package main

import (
	"fmt"
	"os"
)

// Status lines go to stderr so piped stdout stays clean (the MCP transport
// owns stdin/stdout).
func printStatus(color, mark, format string, args ...any) {
	line := mark + " " + fmt.Sprintf(format, args...)
	if !noColor {
		line = color + line + "\033[0m"
	}
	fmt.Fprintln(os.Stderr, line)
}

func printSuccess(format string, args ...any) { printStatus("\033[32m", "✓", format, args...) }
func printError(format string, args ...any)   { printStatus("\033[31m", "✗", format, args...) }
func printWarning(format string, args ...any) { printStatus("\033[33m", "⚠", format, args...) }

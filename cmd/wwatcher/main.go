// Package main is the entry point for the whale watcher.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/whalewatcher/watcher/internal/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// defaultTUILogFile receives logs while the dashboard owns the terminal.
const defaultTUILogFile = "whale-watcher.log"

const usage = `Usage: wwatcher <command> [flags]

Commands:
  watch          poll Polymarket and Kalshi and alert on whale trades
                 -t, --threshold <usd>      minimum notional (default 25000)
                 -i, --interval <seconds>   poll interval (default 5)
                 --tui                      show the terminal dashboard
  status         print the current configuration
  setup          save Kalshi credentials and alert destinations
  test-sound     play the normal and elevated alert cues
  test-webhook   send a sample BUY and SELL alert to configured destinations
  version        print build information
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "watch":
		return runWatch(rest, stdout, stderr)
	case "status":
		return runStatus(stdout, stderr)
	case "setup":
		return runSetup(stdin, stdout, stderr)
	case "test-sound":
		return runTestSound(stdout, stderr)
	case "test-webhook":
		return runTestWebhook(stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, version.String())
		return exitOK
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(w, opts)
	return slog.New(handler)
}

// logOutput picks where logs go. A file is rotated; the dashboard forces a
// file so log lines never land on the TUI.
func logOutput(logFile string, tui bool, stdout io.Writer) (io.Writer, func() error) {
	if logFile == "" && tui {
		logFile = defaultTUILogFile
	}
	if logFile == "" {
		return stdout, func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	return rotator, rotator.Close
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/cli/techfinctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("TECHFIN_CLI_TIMEOUT")), 60*time.Second)
	options := techfinctl.Options{
		BaseURL: envOr("TECHFIN_API_URL", "http://localhost:8080"),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		NoColor: !term.IsTerminal(int(os.Stdout.Fd())),
	}

	code := techfinctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid TECHFIN_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}

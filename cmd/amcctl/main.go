package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amcassist/amcassist/internal/cli/amcctl"
	"github.com/amcassist/amcassist/internal/config"
)

func main() {
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
	}
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("AMCASSIST_CLI_TIMEOUT")), 60*time.Second)
	options := amcctl.Options{
		BaseURL: envOr("AMCASSIST_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("AMCASSIST_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := amcctl.Run(context.Background(), os.Args[1:], options)
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
		_, _ = fmt.Fprintf(os.Stderr, "invalid AMCASSIST_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}

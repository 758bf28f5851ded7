// Package amcctl implements the command-line client of the assistant API.
package amcctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures that exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

type httpError struct {
	status int
	body   string
}

func (e httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 on request failures and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err)
	var usage usageError
	if errors.As(err, &usage) || isCobraUsageError(err) {
		_, _ = fmt.Fprintln(stderr, root.UsageString())
		return 2
	}
	return 1
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "arg(s)") ||
		strings.HasPrefix(msg, "invalid argument")
}

func NewRootCommand(defaults Options) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	c := &client{}

	root := &cobra.Command{
		Use:           "amcctl",
		Short:         "Command-line client for the AMC insights assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.baseURL = strings.TrimRight(baseURL, "/")
			c.apiKey = strings.TrimSpace(apiKey)
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageError{err: errors.New("a command is required")}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "assistant API base URL")
	flags.StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		getCommand(c, "health", "Check service liveness", "/v1/health"),
		getCommand(c, "ready", "Check service readiness", "/v1/ready"),
		getCommand(c, "advertisers", "List advertisers available for scoping", "/v1/advertisers"),
		getCommand(c, "prompts", "List starter prompts", "/v1/prompts"),
		newChatCommand(c),
		newAskCommand(c),
		newExportCommand(c),
		newDatasetsCommand(c),
	)
	return root
}

func getCommand(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printJSON(cmd, http.MethodGet, path, nil)
		},
	}
}

func newChatCommand(c *client) *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage chats",
	}

	var (
		title       string
		advertisers []string
		start       string
		end         string
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a chat locked to an advertiser scope and date window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{"title": title, "advertisers": advertisers, "start_date": start, "end_date": end}
			return c.printJSON(cmd, http.MethodPost, "/v1/chats", body)
		},
	}
	newCmd.Flags().StringVar(&title, "title", "", "chat title (default derived from the first question)")
	newCmd.Flags().StringSliceVar(&advertisers, "advertiser", nil, "advertiser instance name; only the first is applied")
	newCmd.Flags().StringVar(&start, "start", "", "window start date (YYYY-MM-DD)")
	newCmd.Flags().StringVar(&end, "end", "", "window end date (YYYY-MM-DD)")

	listCmd := getCommand(c, "list", "List chats", "/v1/chats")

	showCmd := &cobra.Command{
		Use:   "show <chat-id>",
		Short: "Show a chat and its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd, http.MethodGet, "/v1/chats/"+url.PathEscape(args[0]), nil)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat and its archived exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd, http.MethodDelete, "/v1/chats/"+url.PathEscape(args[0]), nil)
		},
	}

	chatCmd.AddCommand(newCmd, listCmd, showCmd, deleteCmd)
	return chatCmd
}

func newAskCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <chat-id> <question...>",
		Short: "Ask a question in a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"text": strings.Join(args[1:], " ")}
			return c.printJSON(cmd, http.MethodPost, "/v1/chats/"+url.PathEscape(args[0])+"/messages", body)
		},
	}
}

func newDatasetsCommand(c *client) *cobra.Command {
	datasetsCmd := &cobra.Command{
		Use:   "datasets",
		Short: "Browse warehouse tables with totals and a default chart",
	}
	listCmd := getCommand(c, "list", "List datasets and their columns", "/v1/datasets")

	var (
		advertiser string
		limit      int
	)
	showCmd := &cobra.Command{
		Use:   "show <table>",
		Short: "Show rows, totals and the default chart of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return usageError{err: errors.New("--limit must not be negative")}
			}
			query := url.Values{}
			if strings.TrimSpace(advertiser) != "" {
				query.Set("advertiser", strings.TrimSpace(advertiser))
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/datasets/" + url.PathEscape(args[0])
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			return c.printJSON(cmd, http.MethodGet, path, nil)
		},
	}
	showCmd.Flags().StringVar(&advertiser, "advertiser", "", "advertiser instance name (default global)")
	showCmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to fetch (server default 1000)")

	datasetsCmd.AddCommand(listCmd, showCmd)
	return datasetsCmd
}

func newExportCommand(c *client) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <chat-id> <turn-id>",
		Short: "Download an assistant turn as csv, xlsx, pdf or parquet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/chats/" + url.PathEscape(args[0]) + "/turns/" + url.PathEscape(args[1]) +
				"/export?format=" + url.QueryEscape(format)
			_, body, headers, err := c.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(body), output)
			if link := headers.Get("X-Export-URL"); link != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "archived copy: %s\n", link)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "export format: csv, xlsx, pdf or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *client) printJSON(cmd *cobra.Command, method, path string, body any) error {
	_, responseBody, _, err := c.do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body any) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, responseBody, resp.Header, httpError{status: resp.StatusCode, body: strings.TrimSpace(string(responseBody))}
	}
	return resp.StatusCode, responseBody, resp.Header, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

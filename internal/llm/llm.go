// Package llm talks to hosted language models over their REST APIs.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amcassist/amcassist/internal/config"
	"github.com/amcassist/amcassist/internal/observability"
)

type Request struct {
	System string
	User   string
	// JSON asks the provider to constrain output to a single JSON object.
	JSON bool
}

type Model interface {
	Provider() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// New builds the model selected by cfg.Provider; provider "none" yields a
// nil model and no error.
func New(cfg config.AIConfig) (Model, error) {
	modelCfg := Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
	switch cfg.Provider {
	case config.AIProviderNone, "":
		return nil, nil
	case config.AIProviderOpenAI:
		return NewOpenAI(modelCfg)
	case config.AIProviderGemini:
		return NewGemini(modelCfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// Instrumented counts calls and outcomes per provider.
type Instrumented struct {
	Model Model
}

func (m Instrumented) Provider() string {
	return m.Model.Provider()
}

func (m Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	out, err := m.Model.Complete(ctx, req)
	observability.ObserveLLMRequest(m.Model.Provider(), err)
	return out, err
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request model completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("model completion failed status=%d body=%s", resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, nil
}

func truncate(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

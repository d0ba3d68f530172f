// Package ai provides the ai_generate action, which asks a text generation endpoint to
// write content from a rendered prompt.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const (
	ID = "ai_generate"

	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 256
	defaultOutput    = "ai_content"
	defaultTimeout   = 30 * time.Second
)

var (
	ErrPromptRequired   = errors.New("ai prompt is required")
	ErrEndpointMissing  = errors.New("ai endpoint is not configured")
	ErrGenerationFailed = errors.New("ai generation failed")
)

// Settings configure the generation endpoint shared by every ai_generate node.
type Settings struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type ActionFactory[C models.Entity] struct {
	client *http.Client
	logger *slog.Logger
}

func NewActionFactory[C models.Entity](client *http.Client, logger *slog.Logger) *ActionFactory[C] {
	if client == nil {
		client = http.DefaultClient
	}

	return &ActionFactory[C]{client: client, logger: logger}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

// Create reads the endpoint, api_key, model and timeout settings.
func (f *ActionFactory[C]) Create(config map[string]any) (protocol.Action[C], error) {
	settings := Settings{
		Endpoint: actions.String(config, "endpoint", ""),
		APIKey:   actions.String(config, "api_key", ""),
		Model:    actions.String(config, "model", defaultModel),
		Timeout:  actions.Duration(config, "timeout", defaultTimeout),
	}

	return NewAction[C](f.client, f.logger, settings), nil
}

type Action[C models.Entity] struct {
	client   *http.Client
	logger   *slog.Logger
	settings Settings
}

func NewAction[C models.Entity](client *http.Client, logger *slog.Logger, settings Settings) *Action[C] {
	if settings.Model == "" {
		settings.Model = defaultModel
	}

	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}

	return &Action[C]{
		client:   client,
		logger:   logger.With("module", "ai_action"),
		settings: settings,
	}
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type generateResponse struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// Execute sends the prompt parameter to the endpoint and stores the generated text under
// the output parameter.
func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	if a.settings.Endpoint == "" {
		return nil, ErrEndpointMissing
	}

	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	prompt := actions.String(rendered, "prompt", "")
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	body, err := json.Marshal(generateRequest{
		Model:     actions.String(rendered, "model", a.settings.Model),
		Prompt:    prompt,
		MaxTokens: actions.Int(rendered, "max_tokens", defaultMaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ai request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ai request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if a.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.settings.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var generated generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %w", ErrGenerationFailed, err)
	}

	text := generated.Text
	if text == "" {
		text = generated.Content
	}

	a.logger.InfoContext(ctx, "AI content generated", "entity", entity.Ref(), "length", len(text))

	return map[string]any{
		actions.String(rendered, "output", defaultOutput): text,
		"action_result": "ai_generated",
	}, nil
}

package ai_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dashcrm/flowsaga/pkg/actions/ai"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFactory_RequiresEndpoint(t *testing.T) {
	factory := ai.NewActionFactory[models.LeadContext](nil, slog.New(slog.DiscardHandler))
	assert.Equal(t, "ai_generate", factory.ID())

	action, err := factory.Create(map[string]any{})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), map[string]any{"prompt": "hello"}, models.Payload{}, models.LeadContext{})
	require.ErrorIs(t, err, ai.ErrEndpointMissing)
}

func TestAction_Execute(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		status     int
		parameters map[string]any
		key        string
		expected   string
		wantErr    error
	}{
		{
			name:       "text field",
			response:   `{"text":"Hi Ada, thanks for your interest."}`,
			parameters: map[string]any{"prompt": "Write a welcome for {{ .entity.name }}"},
			key:        "ai_content",
			expected:   "Hi Ada, thanks for your interest.",
		},
		{
			name:       "content field under custom output",
			response:   `{"content":"Subject: Welcome"}`,
			parameters: map[string]any{"prompt": "Subject line", "output": "subject"},
			key:        "subject",
			expected:   "Subject: Welcome",
		},
		{
			name:       "endpoint error",
			status:     http.StatusTooManyRequests,
			response:   `rate limited`,
			parameters: map[string]any{"prompt": "anything"},
			wantErr:    ai.ErrGenerationFailed,
		},
		{
			name:       "missing prompt",
			parameters: map[string]any{},
			wantErr:    ai.ErrPromptRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received map[string]any

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				_ = json.NewDecoder(r.Body).Decode(&received)

				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}

				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			action := ai.NewAction[models.LeadContext](server.Client(), slog.New(slog.DiscardHandler), ai.Settings{
				Endpoint: server.URL,
				APIKey:   "secret",
				Model:    "test-model",
			})

			lead := models.LeadContext{Lead: &models.Lead{ID: "lead-1", Name: "Ada"}}

			result, err := action.Execute(context.Background(), tt.parameters, models.Payload{}, lead)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result[tt.key])
			assert.Equal(t, "ai_generated", result["action_result"])
			assert.Equal(t, "test-model", received["model"])
			assert.InDelta(t, 256, received["max_tokens"], 0)
		})
	}
}

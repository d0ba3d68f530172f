// Package log provides the action that writes a templated message to the structured log.
package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

const (
	ID             = "log"
	defaultMessage = "Workflow node executed"
)

// ActionFactory creates log actions. The "level" setting sets the default level.
type ActionFactory[C models.Entity] struct {
	logger *slog.Logger
}

func NewActionFactory[C models.Entity](logger *slog.Logger) *ActionFactory[C] {
	return &ActionFactory[C]{logger: logger}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

func (f *ActionFactory[C]) Create(config map[string]any) (protocol.Action[C], error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction[C](f.logger, parseLevel(actions.String(config, "level", "info"), slog.LevelInfo)), nil
}

// Action logs the "message" parameter at the "level" parameter or the configured level.
type Action[C models.Entity] struct {
	logger *slog.Logger
	level  slog.Level
}

func NewAction[C models.Entity](logger *slog.Logger, level slog.Level) *Action[C] {
	return &Action[C]{
		logger: logger.With("module", "log_action"),
		level:  level,
	}
}

func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	level := parseLevel(actions.String(rendered, "level", ""), a.level)

	a.logger.Log(ctx, level, actions.String(rendered, "message", defaultMessage),
		"entity", entity.Ref(),
		"execution_id", actions.ExecutionID(entity),
		"payload_keys", len(payload))

	return map[string]any{}, nil
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

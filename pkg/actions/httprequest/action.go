// Package httprequest provides the action that calls an HTTP endpoint, retrying server
// errors with exponential backoff, and the compensator that notifies a compensation URL.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dashcrm/flowsaga/pkg/actions"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
	"github.com/sethvargo/go-retry"
)

const (
	ID = "http_request"

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 1
	defaultDelay    = 200 * time.Millisecond
	maxResponseSize = 1 << 20
)

var (
	// ErrHTTPRequestURLInvalid is returned when the url parameter is missing or malformed.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPServerError is returned when the server keeps answering with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrCompensationRejected is returned when the compensation endpoint answers with an error status.
	ErrCompensationRejected = errors.New("compensation request rejected")
)

// Settings are the defaults of every http_request node. Nodes override them with the
// timeout, attempts and delay parameters.
type Settings struct {
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration
}

func settingsFrom(config map[string]any) Settings {
	return Settings{
		Timeout:  actions.Duration(config, "timeout", defaultTimeout),
		Attempts: actions.Int(config, "attempts", defaultAttempts),
		Delay:    actions.Duration(config, "delay", defaultDelay),
	}
}

type ActionFactory[C models.Entity] struct {
	client *http.Client
	logger *slog.Logger
}

// NewActionFactory creates http_request actions sharing client. A nil client uses
// http.DefaultClient.
func NewActionFactory[C models.Entity](client *http.Client, logger *slog.Logger) *ActionFactory[C] {
	if client == nil {
		client = http.DefaultClient
	}

	return &ActionFactory[C]{client: client, logger: logger}
}

func (*ActionFactory[C]) ID() string {
	return ID
}

func (f *ActionFactory[C]) Create(config map[string]any) (protocol.Action[C], error) {
	return NewAction[C](f.client, f.logger, settingsFrom(config)), nil
}

// Action performs the request described by its node parameters:
//
//	url, method, headers, body, timeout, attempts, delay, output,
//	compensation_url, compensation_method
//
// String parameters are templates over the payload and entity. The result holds
// status_code and body, nested under the output parameter when one is given.
type Action[C models.Entity] struct {
	client   *http.Client
	logger   *slog.Logger
	settings Settings
}

func NewAction[C models.Entity](client *http.Client, logger *slog.Logger, settings Settings) *Action[C] {
	if settings.Attempts < 1 {
		settings.Attempts = defaultAttempts
	}

	if settings.Delay <= 0 {
		settings.Delay = defaultDelay
	}

	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}

	return &Action[C]{
		client:   client,
		logger:   logger.With("module", "http_request_action"),
		settings: settings,
	}
}

type request struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
	timeout time.Duration
}

type response struct {
	status int
	body   any
}

func (a *Action[C]) Execute(ctx context.Context, parameters map[string]any, payload models.Payload, entity C) (map[string]any, error) {
	rendered, err := actions.RenderParameters(parameters, payload, entity)
	if err != nil {
		return nil, err
	}

	req, err := a.buildRequest(rendered)
	if err != nil {
		return nil, err
	}

	attempts := actions.Int(rendered, "attempts", a.settings.Attempts)
	if attempts < 1 {
		attempts = 1
	}

	delay := actions.Duration(rendered, "delay", a.settings.Delay)
	if delay <= 0 {
		delay = defaultDelay
	}

	logger := a.logger.With("method", req.method, "url", req.url, "entity", entity.Ref())
	logger.InfoContext(ctx, "Executing HTTP request", "attempts", attempts)

	var resp response

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(delay))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := a.do(ctx, req)
		if err != nil {
			logger.WarnContext(ctx, "HTTP request attempt failed", "error", err)

			return retry.RetryableError(err)
		}

		if r.status >= http.StatusInternalServerError {
			logger.WarnContext(ctx, "HTTP request attempt got server error", "status_code", r.status)

			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrHTTPServerError, r.status))
		}

		resp = r

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("all %d attempts failed: %w", attempts, err)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.status)

	outcome := map[string]any{
		"status_code": resp.status,
		"body":        resp.body,
	}

	result := outcome
	if output := actions.String(rendered, "output", ""); output != "" {
		result = map[string]any{output: outcome}
	}

	if compensationURL := actions.String(rendered, "compensation_url", ""); compensationURL != "" {
		result[models.CompensationKey] = map[string]any{
			"url":         compensationURL,
			"method":      strings.ToUpper(actions.String(rendered, "compensation_method", http.MethodPost)),
			"status_code": resp.status,
			"body":        resp.body,
		}
	}

	return result, nil
}

// Compensate calls the compensation URL recorded by Execute with the original response.
// Steps without a compensation URL have nothing to undo.
func (a *Action[C]) Compensate(ctx context.Context, step models.StepRecord, entity C) error {
	target := actions.String(step.Compensation, "url", "")
	if target == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"node":     step.Node,
		"action":   step.Action,
		"entity":   entity.Ref(),
		"response": step.Compensation["body"],
	})
	if err != nil {
		return fmt.Errorf("failed to marshal compensation body: %w", err)
	}

	resp, err := a.do(ctx, request{
		method:  actions.String(step.Compensation, "method", http.MethodPost),
		url:     target,
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
		timeout: a.settings.Timeout,
	})
	if err != nil {
		return err
	}

	if resp.status >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s answered %d", ErrCompensationRejected, target, resp.status)
	}

	a.logger.InfoContext(ctx, "HTTP step compensated", "node", step.Node, "url", target)

	return nil
}

func (a *Action[C]) buildRequest(rendered map[string]any) (request, error) {
	target := actions.String(rendered, "url", "")
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return request{}, fmt.Errorf("%w: %q", ErrHTTPRequestURLInvalid, target)
	}

	req := request{
		method:  strings.ToUpper(actions.String(rendered, "method", http.MethodGet)),
		url:     target,
		headers: actions.StringMap(rendered, "headers"),
		timeout: actions.Duration(rendered, "timeout", a.settings.Timeout),
	}

	if req.timeout <= 0 {
		req.timeout = a.settings.Timeout
	}

	switch body := rendered["body"].(type) {
	case nil:
	case string:
		req.body = []byte(body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return request{}, fmt.Errorf("failed to marshal body: %w", err)
		}

		req.body = data

		if _, ok := req.headers["Content-Type"]; !ok {
			req.headers["Content-Type"] = "application/json"
		}
	}

	return req, nil
}

func (a *Action[C]) do(ctx context.Context, req request) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return response{}, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return response{}, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		decoded = string(data)
	}

	return response{status: httpResp.StatusCode, body: decoded}, nil
}

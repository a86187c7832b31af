package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Transport performs exactly one request/response exchange against the
// inference endpoint. It owns no retry policy; failures are classified
// into a *TransportError for the invoker to act on.
type Transport interface {
	Generate(ctx context.Context, req InvocationRequest) (string, error)
}

// HTTPTransport talks to an Ollama-style generate endpoint:
// POST {model, prompt, stream:false, options:{temperature, num_predict}}
// and reads the "response" field back.
type HTTPTransport struct {
	URL     string
	Model   string
	Timeout time.Duration

	client *http.Client
	logger *slog.Logger
}

func NewHTTPTransport(url, model string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		URL:     url,
		Model:   model,
		Timeout: timeout,
		// The per-call context carries the deadline; the client itself
		// stays unbounded so a caller-supplied deadline wins.
		client: &http.Client{},
		logger: logger,
	}
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generatePayload struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateEnvelope struct {
	Response string `json:"response"`
}

// Generate sends one request with the transport timeout applied to the
// full round trip, body read included.
func (t *HTTPTransport) Generate(ctx context.Context, req InvocationRequest) (string, error) {
	// The endpoint takes a single prompt; the system prompt is prepended.
	full := req.Prompt
	if req.SystemPrompt != "" {
		full = req.SystemPrompt + "\n" + req.Prompt
	}

	payload := generatePayload{
		Model:  t.Model,
		Prompt: full,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &TransportError{Kind: KindDecode, Cause: fmt.Errorf("encode payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Kind: KindConnection, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", classifyDoError(err)
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			t.logger.Warn("llm.transport.body_close_error", "token", req.Token, "error", cerr)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyDoError(err)
	}

	t.logger.Debug("llm.transport.response",
		"token", req.Token,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return "", &TransportError{Kind: KindHTTPStatus, Status: resp.StatusCode,
			Cause: fmt.Errorf("non-2xx status: %d", resp.StatusCode)}
	}

	var env generateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &TransportError{Kind: KindDecode, Cause: fmt.Errorf("decode envelope: %w", err)}
	}
	return strings.TrimSpace(env.Response), nil
}

// classifyDoError maps a client error to a TransportError kind, keeping
// timeouts distinct so the retry policy can treat them differently.
func classifyDoError(err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransportError{Kind: KindTimeout, Cause: err}
	}
	return &TransportError{Kind: KindConnection, Cause: err}
}

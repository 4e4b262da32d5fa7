// Package hub implements the agent capability client against the remote hub
// HTTP API. It is internal so agent plugins cannot reach the credential.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// DefaultTimeout bounds a single hub request when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Config describes one hub session.
type Config struct {
	UserAuth string
	BaseURL  string
	ThreadID string
	EnvVars  map[string]string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Adapter talks to the hub on behalf of one thread.
type Adapter struct {
	baseURL  *url.URL
	userAuth string
	threadID string
	envVars  map[string]string

	httpClient *http.Client
	llm        *openai.Client
	log        *slog.Logger
}

var _ agentenv.SecureClient = (*Adapter)(nil)

// APIError is a non-2xx hub response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("hub api error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("hub api error (%d %s)", e.StatusCode, e.Status)
}

// New builds an adapter. The credential is kept in an unexported field and
// only ever leaves it as an Authorization header.
func New(cfg Config) (*Adapter, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "hub base url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid hub base url %q", base))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	httpClient.Transport = &instrumentedTransport{
		base:    httpClient.Transport,
		limiter: rate.NewLimiter(limit, burst),
	}

	llmCfg := openai.DefaultConfig(cfg.UserAuth)
	llmCfg.BaseURL = parsed.String()
	llmCfg.HTTPClient = httpClient

	return &Adapter{
		baseURL:    parsed,
		userAuth:   cfg.UserAuth,
		threadID:   cfg.ThreadID,
		envVars:    maps.Clone(cfg.EnvVars),
		httpClient: httpClient,
		llm:        openai.NewClientWithConfig(llmCfg),
		log:        logger.Named("hub"),
	}, nil
}

// ForThread returns an adapter sharing transport and credential but bound to
// another thread.
func (a *Adapter) ForThread(threadID string) *Adapter {
	clone := *a
	clone.threadID = threadID
	return &clone
}

// ThreadID returns the thread this adapter is bound to.
func (a *Adapter) ThreadID() string {
	return a.threadID
}

// EnvVar reads a run environment variable.
func (a *Adapter) EnvVar(name string) (string, bool) {
	v, ok := a.envVars[name]
	return v, ok
}

func (a *Adapter) threadPath(parts ...string) string {
	return path.Join(append([]string{"/threads", url.PathEscape(a.threadID)}, parts...)...)
}

func (a *Adapter) newRequest(ctx context.Context, op, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(a.baseURL.Path, endpoint)}
	u := a.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(withOperation(ctx, op), method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.userAuth)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// call sends a JSON request and decodes the JSON response into out (when
// non-nil).
func (a *Adapter) call(ctx context.Context, op, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode "+op+" request")
		}
		body = bytes.NewReader(data)
	}
	req, err := a.newRequest(ctx, op, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	data, err := a.send(req, op)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return decode(data, out, op)
}

func decode(data []byte, out any, op string) error {
	if err := json.Unmarshal(data, out); err != nil {
		return xerrors.Wrap(xerrors.CodeHubRequestFailed, err, "decode "+op+" response")
	}
	return nil
}

// send performs req and returns the raw body of a 2xx response.
func (a *Adapter) send(req *http.Request, op string) ([]byte, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHubRequestFailed, err, op+": perform request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHubRequestFailed, err, op+": read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

func statusError(op string, status int, message string) error {
	apiErr := &APIError{StatusCode: status, Status: http.StatusText(status), Message: message}
	return xerrors.Wrap(xerrors.CodeHubRequestFailed, apiErr, op,
		xerrors.WithMetadata("status", strconv.Itoa(status)),
		xerrors.WithRetryable(status == http.StatusTooManyRequests || status >= 500))
}

// sdkError maps a go-openai failure onto the same error shape as send.
func sdkError(op string, err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0:
		return statusError(op, apiErr.HTTPStatusCode, apiErr.Message)
	case errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0:
		return statusError(op, reqErr.HTTPStatusCode, errorMessage(reqErr.Body))
	}
	return xerrors.Wrap(xerrors.CodeHubRequestFailed, err, op)
}

// errorMessage extracts {"error":{"message":...}} or {"message":...}, falling
// back to the raw body.
func errorMessage(data []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(data))
}

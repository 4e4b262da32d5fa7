// Package agentenv is the only package agent code imports. Env wraps the
// capability client with defaults and conveniences; it never widens what
// the client can do.
package agentenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Defaults applied by Completion when the caller does not override them.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = float32(0.7)
)

// ErrClientNotInitialized is returned when the client lacks a capability
// the operation needs.
var ErrClientNotInitialized = errors.New("Client not initialized")

// Agent is an alternative to exporting a bare Run function from a plugin.
type Agent interface {
	Run(ctx context.Context, env *Env) error
}

// RunFunc is the signature of an agent entry point.
type RunFunc func(ctx context.Context, env *Env) error

// Env is the agent-facing facade.
type Env struct {
	client Capabilities
	log    *slog.Logger
}

// New wraps a capability client.
func New(client Capabilities) *Env {
	return &Env{client: client, log: logger.Named("agentenv")}
}

// Logger returns the host logger, tagged for agent output.
func (e *Env) Logger() *slog.Logger {
	return e.log
}

// CompletionOption overrides a Completion default.
type CompletionOption func(*CompletionRequest)

// WithModel selects the model. The empty default lets the hub choose.
func WithModel(model string) CompletionOption {
	return func(r *CompletionRequest) { r.Model = model }
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) { r.MaxTokens = n }
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float32) CompletionOption {
	return func(r *CompletionRequest) { r.Temperature = t }
}

// WithTools offers tools to the model.
func WithTools(tools ...Tool) CompletionOption {
	return func(r *CompletionRequest) { r.Tools = append(r.Tools, tools...) }
}

// CompletionMessage runs a completion and returns the first choice, or nil
// when the client cannot serve completions.
func (e *Env) CompletionMessage(ctx context.Context, messages []ChatMessage, opts ...CompletionOption) (*CompletionChoice, error) {
	completer, ok := e.client.(Completer)
	if !ok {
		e.log.Warn("client cannot serve completions")
		return nil, nil
	}
	req := CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&req)
	}
	resp, err := completer.Completions(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, nil
	}
	choice := resp.Choices[0]
	return &choice, nil
}

// Completion returns the first choice's content. It returns "" with a nil
// error when the client cannot serve completions.
func (e *Env) Completion(ctx context.Context, messages []ChatMessage, opts ...CompletionOption) (string, error) {
	choice, err := e.CompletionMessage(ctx, messages, opts...)
	if err != nil || choice == nil {
		return "", err
	}
	return choice.Message.Content, nil
}

// AddReply posts an assistant message to the thread.
func (e *Env) AddReply(ctx context.Context, message, messageType string) (*Message, error) {
	replier, ok := e.client.(Replier)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return replier.AddReply(ctx, message, messageType)
}

// ReadFile returns the content of the thread file named filename. When
// several attachments share the name the latest one wins.
func (e *Env) ReadFile(ctx context.Context, filename string) (string, error) {
	reader, ok := e.client.(ThreadFileReader)
	if !ok {
		return "", ErrClientNotInitialized
	}
	files, err := reader.ListFilesFromThread(ctx, OrderAsc)
	if err != nil {
		return "", err
	}
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		if f.Filename != filename {
			continue
		}
		if f.Content != "" {
			return f.Content, nil
		}
		return reader.ReadFileContent(ctx, f.ID)
	}
	return "", fmt.Errorf("file %q not found in thread %s", filename, e.client.ThreadID())
}

// GetLastMessage returns the newest message authored by role ("user" when
// empty), or nil when there is none.
func (e *Env) GetLastMessage(ctx context.Context, role string) (*Message, error) {
	if role == "" {
		role = RoleUser
	}
	messages, err := e.ListMessages(ctx, ListOptions{Order: OrderAsc})
	if err != nil {
		return nil, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			msg := messages[i]
			return &msg, nil
		}
	}
	return nil, nil
}

// GetLastMessageContent returns the first text part of the newest message
// authored by role, or "".
func (e *Env) GetLastMessageContent(ctx context.Context, role string) (string, error) {
	msg, err := e.GetLastMessage(ctx, role)
	if err != nil {
		return "", err
	}
	return msg.Text(), nil
}

// EnvVar reads a run environment variable.
func (e *Env) EnvVar(name string) (string, bool) {
	reader, ok := e.client.(EnvReader)
	if !ok {
		return "", false
	}
	return reader.EnvVar(name)
}

// ListMessages lists the thread's messages.
func (e *Env) ListMessages(ctx context.Context, opts ListOptions) ([]Message, error) {
	reader, ok := e.client.(MessageReader)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return reader.ListMessages(ctx, opts)
}

// QueryVectorStore runs a similarity search and returns the raw hub response.
func (e *Env) QueryVectorStore(ctx context.Context, vectorStoreID, query string) ([]byte, error) {
	stores, ok := e.client.(VectorStores)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return stores.QueryVectorStore(ctx, vectorStoreID, query)
}

// AddFileToVectorStore indexes an uploaded file.
func (e *Env) AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	stores, ok := e.client.(VectorStores)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return stores.AddFileToVectorStore(ctx, vectorStoreID, fileID)
}

// CreateVectorStore creates a vector store.
func (e *Env) CreateVectorStore(ctx context.Context, req VectorStoreRequest) (*VectorStore, error) {
	stores, ok := e.client.(VectorStores)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return stores.CreateVectorStore(ctx, req)
}

// UploadFile uploads a file without attaching it to the thread.
func (e *Env) UploadFile(ctx context.Context, req UploadRequest) (*FileObject, error) {
	writer, ok := e.client.(FileWriter)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return writer.UploadFile(ctx, req)
}

// WriteFile uploads content and attaches it to the thread.
func (e *Env) WriteFile(ctx context.Context, filename, content string) (*FileObject, error) {
	writer, ok := e.client.(FileWriter)
	if !ok {
		return nil, ErrClientNotInitialized
	}
	return writer.WriteFile(ctx, filename, content)
}

// ThreadID returns the id of the thread the agent runs in.
func (e *Env) ThreadID() string {
	return e.client.ThreadID()
}

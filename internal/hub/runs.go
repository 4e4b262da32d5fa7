package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/metrics"
	"github.com/nuyoahch/agent-runtime/pkg/poll"
)

// Run statuses observed while waiting.
const (
	RunQueued     = "queued"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// Run is a request for the hub to produce assistant output on a thread.
type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id,omitempty"`
	Status      string    `json:"status"`
	LastError   *RunError `json:"last_error,omitempty"`
	CreatedAt   int64     `json:"created_at,omitempty"`
}

// RunError is the hub's explanation of a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RunError) String() string {
	if e == nil {
		return "no error reported"
	}
	return e.Code + ": " + e.Message
}

// Pending reports whether the hub is still working on the run.
func (r *Run) Pending() bool {
	return r.Status == RunQueued || r.Status == RunInProgress
}

// RunRequest starts a run.
type RunRequest struct {
	AssistantID  string
	Model        string
	Instructions string
}

func (a *Adapter) runPath(runID string) string {
	return a.threadPath("runs", url.PathEscape(runID))
}

func fromRun(r openai.Run) *Run {
	run := &Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
	if r.LastError != nil {
		run.LastError = &RunError{Code: string(r.LastError.Code), Message: r.LastError.Message}
	}
	return run
}

// CreateRun starts a run on the bound thread.
func (a *Adapter) CreateRun(ctx context.Context, req RunRequest) (*Run, error) {
	run, err := a.llm.CreateRun(withOperation(ctx, "create_run"), url.PathEscape(a.threadID), openai.RunRequest{
		AssistantID:  req.AssistantID,
		Model:        req.Model,
		Instructions: req.Instructions,
	})
	if err != nil {
		return nil, sdkError("create_run", err)
	}
	return fromRun(run), nil
}

// Run fetches the current state of a run.
func (a *Adapter) Run(ctx context.Context, runID string) (*Run, error) {
	run, err := a.llm.RetrieveRun(withOperation(ctx, "get_run"), url.PathEscape(a.threadID), url.PathEscape(runID))
	if err != nil {
		return nil, sdkError("get_run", err)
	}
	return fromRun(run), nil
}

// WaitForRun polls the run until its status leaves queued/in_progress. Each
// attempt builds a fresh request so the poll loop owns the fetch.
func (a *Adapter) WaitForRun(ctx context.Context, runID string, opts poll.Options) (*Run, error) {
	opts.Client = a.httpClient
	if opts.OnAttempt == nil {
		opts.OnAttempt = metrics.RecordPollAttempt
	}
	newReq := func(ctx context.Context) (*http.Request, error) {
		return a.newRequest(ctx, "poll_run", http.MethodGet, a.runPath(runID), nil, nil)
	}
	run, err := poll.Until(ctx, newReq, opts, func(status int, body []byte) (*Run, bool, error) {
		if status < 200 || status >= 300 {
			return nil, false, &APIError{StatusCode: status, Status: http.StatusText(status), Message: errorMessage(body)}
		}
		var run Run
		if err := json.Unmarshal(body, &run); err != nil {
			return nil, false, fmt.Errorf("decode run: %w", err)
		}
		return &run, !run.Pending(), nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return nil, xerrors.Wrap(xerrors.CodePollTimeout, err, "wait for run "+runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

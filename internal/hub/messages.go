package hub

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

// pageSize is used when listing every message of a thread.
const pageSize = 100

type listPage[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

// CreateThread opens a new thread.
func (a *Adapter) CreateThread(ctx context.Context, metadata map[string]string) (*agentenv.Thread, error) {
	req := openai.ThreadRequest{}
	if len(metadata) > 0 {
		req.Metadata = anyMap(metadata)
	}
	thread, err := a.llm.CreateThread(withOperation(ctx, "create_thread"), req)
	if err != nil {
		return nil, sdkError("create_thread", err)
	}
	return fromThread(thread), nil
}

// Thread fetches the bound thread.
func (a *Adapter) Thread(ctx context.Context) (*agentenv.Thread, error) {
	thread, err := a.llm.RetrieveThread(withOperation(ctx, "get_thread"), url.PathEscape(a.threadID))
	if err != nil {
		return nil, sdkError("get_thread", err)
	}
	return fromThread(thread), nil
}

// ListMessages lists the thread's messages. With a zero Limit every page is
// fetched; Order defaults to ascending.
//
// Listing decodes the hub response itself: openai.Message has no attachments
// field and thread files are discovered through attachments.
func (a *Adapter) ListMessages(ctx context.Context, opts agentenv.ListOptions) ([]agentenv.Message, error) {
	order := opts.Order
	if order == "" {
		order = agentenv.OrderAsc
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = pageSize
	}

	var all []agentenv.Message
	after := opts.After
	for {
		query := url.Values{}
		query.Set("order", order)
		query.Set("limit", strconv.Itoa(limit))
		if after != "" {
			query.Set("after", after)
		}
		var page listPage[agentenv.Message]
		if err := a.call(ctx, "list_messages", http.MethodGet, a.threadPath("messages"), query, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if opts.Limit > 0 || !page.HasMore || len(page.Data) == 0 {
			return all, nil
		}
		after = page.LastID
		if after == "" {
			after = page.Data[len(page.Data)-1].ID
		}
	}
}

// AddReply posts an assistant message. A non-empty messageType is stored as
// metadata.message_type.
func (a *Adapter) AddReply(ctx context.Context, content, messageType string) (*agentenv.Message, error) {
	req := openai.MessageRequest{Role: agentenv.RoleAssistant, Content: content}
	if messageType != "" {
		req.Metadata = map[string]any{"message_type": messageType}
	}
	return a.postMessage(ctx, "add_reply", req)
}

// PostUserMessage appends a user-authored message.
func (a *Adapter) PostUserMessage(ctx context.Context, content string) (*agentenv.Message, error) {
	return a.postMessage(ctx, "post_user_message", openai.MessageRequest{Role: agentenv.RoleUser, Content: content})
}

func (a *Adapter) postMessage(ctx context.Context, op string, req openai.MessageRequest) (*agentenv.Message, error) {
	msg, err := a.llm.CreateMessage(withOperation(ctx, op), url.PathEscape(a.threadID), req)
	if err != nil {
		return nil, sdkError(op, err)
	}
	out := fromMessage(msg)
	// The SDK response type drops attachments; echo what was sent.
	for _, att := range req.Attachments {
		out.Attachments = append(out.Attachments, agentenv.Attachment{FileID: att.FileID})
	}
	return out, nil
}

func fromThread(t openai.Thread) *agentenv.Thread {
	return &agentenv.Thread{ID: t.ID, CreatedAt: t.CreatedAt, Metadata: t.Metadata}
}

func fromMessage(m openai.Message) *agentenv.Message {
	out := &agentenv.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      m.Role,
		Metadata:  m.Metadata,
		CreatedAt: int64(m.CreatedAt),
	}
	for _, c := range m.Content {
		part := agentenv.ContentPart{Type: c.Type}
		if c.Text != nil {
			part.Text = &agentenv.TextContent{Value: c.Text.Value, Annotations: c.Text.Annotations}
		}
		out.Content = append(out.Content, part)
	}
	for _, id := range m.FileIds {
		out.Attachments = append(out.Attachments, agentenv.Attachment{FileID: id})
	}
	return out
}

func anyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

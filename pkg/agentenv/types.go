package agentenv

import "encoding/json"

// Roles a message can be authored with.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// List orders accepted by the hub.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Thread is a conversation container on the hub.
type Thread struct {
	ID        string         `json:"id"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Message is an append-only entry of a thread.
type Message struct {
	ID          string         `json:"id"`
	ThreadID    string         `json:"thread_id"`
	Role        string         `json:"role"`
	Content     []ContentPart  `json:"content"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// Text returns the value of the first text part, or "".
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			return part.Text.Value
		}
	}
	return ""
}

// ContentPart is one element of a message body. Only text parts are decoded;
// other part types are kept raw.
type ContentPart struct {
	Type string          `json:"type"`
	Text *TextContent    `json:"text,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	type plain ContentPart
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = ContentPart(decoded)
	if p.Type != "text" {
		p.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// TextContent is the payload of a text part.
type TextContent struct {
	Value       string `json:"value"`
	Annotations []any  `json:"annotations,omitempty"`
}

// Attachment references a file attached to a message.
type Attachment struct {
	FileID string `json:"file_id"`
}

// FileObject is a hub file. Content is only populated by calls that fetch it.
type FileObject struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Bytes     int64  `json:"bytes,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Content   string `json:"-"`
}

// ChatMessage is one turn sent to a chat completion.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// CompletionRequest is the input of a chat completion. Stream is accepted for
// call-site compatibility but the hub adapter never streams.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float32
	Tools       []Tool
	Stream      bool
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CompletionChoice is one candidate answer.
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Completion is the result of a chat completion.
type Completion struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
}

// ListOptions controls message listing. Zero values mean "all, ascending".
type ListOptions struct {
	Order string
	Limit int
	After string
}

// UploadRequest describes a file upload.
type UploadRequest struct {
	Filename string
	Content  []byte
	Purpose  string
}

// ExpiresAfter is a vector store expiration policy.
type ExpiresAfter struct {
	Anchor string `json:"anchor"`
	Days   int    `json:"days"`
}

// ChunkingStrategy controls how files are split when indexed.
type ChunkingStrategy struct {
	Type   string          `json:"type"`
	Static *StaticChunking `json:"static,omitempty"`
}

// StaticChunking is the parameter block of the "static" strategy.
type StaticChunking struct {
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens"`
}

// VectorStoreRequest creates a vector store.
type VectorStoreRequest struct {
	Name             string            `json:"name"`
	FileIDs          []string          `json:"file_ids,omitempty"`
	ExpiresAfter     *ExpiresAfter     `json:"expires_after,omitempty"`
	ChunkingStrategy *ChunkingStrategy `json:"chunking_strategy,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// VectorStore is a named collection of indexed files.
type VectorStore struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status,omitempty"`
	CreatedAt    int64         `json:"created_at,omitempty"`
	ExpiresAfter *ExpiresAfter `json:"expires_after,omitempty"`
}

// VectorStoreFile links a file to a vector store.
type VectorStoreFile struct {
	ID            string `json:"id"`
	VectorStoreID string `json:"vector_store_id"`
	Status        string `json:"status,omitempty"`
}

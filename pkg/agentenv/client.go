package agentenv

import "context"

// Capabilities is the minimum every client offers: the identity of the
// thread the agent runs in. Everything else is discovered by type assertion,
// so partially-capable clients degrade instead of failing to link.
type Capabilities interface {
	ThreadID() string
}

// EnvReader exposes the run's environment variables.
type EnvReader interface {
	EnvVar(name string) (string, bool)
}

// Completer runs chat completions.
type Completer interface {
	Completions(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ThreadFileReader resolves files attached to the current thread.
type ThreadFileReader interface {
	ListFilesFromThread(ctx context.Context, order string) ([]FileObject, error)
	ReadFileContent(ctx context.Context, fileID string) (string, error)
}

// MessageReader lists the current thread's messages.
type MessageReader interface {
	ListMessages(ctx context.Context, opts ListOptions) ([]Message, error)
}

// Replier posts assistant-authored messages.
type Replier interface {
	AddReply(ctx context.Context, content, messageType string) (*Message, error)
}

// FileWriter uploads files and attaches them to the thread.
type FileWriter interface {
	UploadFile(ctx context.Context, req UploadRequest) (*FileObject, error)
	WriteFile(ctx context.Context, filename, content string) (*FileObject, error)
}

// VectorStores creates, populates and queries vector stores.
type VectorStores interface {
	CreateVectorStore(ctx context.Context, req VectorStoreRequest) (*VectorStore, error)
	AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error)
	QueryVectorStore(ctx context.Context, vectorStoreID, query string) ([]byte, error)
}

// SecureClient is the full capability surface handed to agents. It never
// exposes credentials or arbitrary hub operations.
type SecureClient interface {
	Capabilities
	EnvReader
	Completer
	ThreadFileReader
	MessageReader
	Replier
	FileWriter
	VectorStores
}

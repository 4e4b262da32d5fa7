package capability

import (
	"context"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

// Restrict wraps client so operations outside policy fail with
// CAPABILITY_DENIED. ThreadID is always available. An empty policy returns
// client unchanged.
func Restrict(client agentenv.SecureClient, policy Policy) agentenv.SecureClient {
	if policy.Empty() {
		return client
	}
	return &restricted{inner: client, policy: policy}
}

type restricted struct {
	inner  agentenv.SecureClient
	policy Policy
}

func (r *restricted) check(c Capability) error {
	if r.policy.Permits(c) {
		return nil
	}
	return xerrors.New(xerrors.CodeCapabilityDenied, "capability "+string(c)+" is not permitted",
		xerrors.WithMetadata("capability", string(c)))
}

func (r *restricted) ThreadID() string {
	return r.inner.ThreadID()
}

func (r *restricted) EnvVar(name string) (string, bool) {
	if r.check(Env) != nil {
		return "", false
	}
	return r.inner.EnvVar(name)
}

func (r *restricted) Completions(ctx context.Context, req agentenv.CompletionRequest) (*agentenv.Completion, error) {
	if err := r.check(Completions); err != nil {
		return nil, err
	}
	return r.inner.Completions(ctx, req)
}

func (r *restricted) ListFilesFromThread(ctx context.Context, order string) ([]agentenv.FileObject, error) {
	if err := r.check(FilesRead); err != nil {
		return nil, err
	}
	return r.inner.ListFilesFromThread(ctx, order)
}

func (r *restricted) ReadFileContent(ctx context.Context, fileID string) (string, error) {
	if err := r.check(FilesRead); err != nil {
		return "", err
	}
	return r.inner.ReadFileContent(ctx, fileID)
}

func (r *restricted) ListMessages(ctx context.Context, opts agentenv.ListOptions) ([]agentenv.Message, error) {
	if err := r.check(MessagesRead); err != nil {
		return nil, err
	}
	return r.inner.ListMessages(ctx, opts)
}

func (r *restricted) AddReply(ctx context.Context, content, messageType string) (*agentenv.Message, error) {
	if err := r.check(MessagesWrite); err != nil {
		return nil, err
	}
	return r.inner.AddReply(ctx, content, messageType)
}

func (r *restricted) UploadFile(ctx context.Context, req agentenv.UploadRequest) (*agentenv.FileObject, error) {
	if err := r.check(FilesWrite); err != nil {
		return nil, err
	}
	return r.inner.UploadFile(ctx, req)
}

func (r *restricted) WriteFile(ctx context.Context, filename, content string) (*agentenv.FileObject, error) {
	if err := r.check(FilesWrite); err != nil {
		return nil, err
	}
	return r.inner.WriteFile(ctx, filename, content)
}

func (r *restricted) CreateVectorStore(ctx context.Context, req agentenv.VectorStoreRequest) (*agentenv.VectorStore, error) {
	if err := r.check(VectorStores); err != nil {
		return nil, err
	}
	return r.inner.CreateVectorStore(ctx, req)
}

func (r *restricted) AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) (*agentenv.VectorStoreFile, error) {
	if err := r.check(VectorStores); err != nil {
		return nil, err
	}
	return r.inner.AddFileToVectorStore(ctx, vectorStoreID, fileID)
}

func (r *restricted) QueryVectorStore(ctx context.Context, vectorStoreID, query string) ([]byte, error) {
	if err := r.check(VectorStores); err != nil {
		return nil, err
	}
	return r.inner.QueryVectorStore(ctx, vectorStoreID, query)
}

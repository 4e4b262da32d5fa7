package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	openai "github.com/sashabaranov/go-openai"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

func vectorStorePath(id string, parts ...string) string {
	return path.Join(append([]string{"/vector_stores", url.PathEscape(id)}, parts...)...)
}

// CreateVectorStore creates a vector store with its expiration policy and
// chunking strategy.
func (a *Adapter) CreateVectorStore(ctx context.Context, req agentenv.VectorStoreRequest) (*agentenv.VectorStore, error) {
	if req.Name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "vector store name is required")
	}
	if req.ChunkingStrategy != nil {
		// openai.VectorStoreRequest cannot carry chunking_strategy.
		var store agentenv.VectorStore
		if err := a.call(ctx, "create_vector_store", http.MethodPost, "/vector_stores", nil, req, &store); err != nil {
			return nil, err
		}
		return &store, nil
	}

	sdkReq := openai.VectorStoreRequest{Name: req.Name, FileIDs: req.FileIDs}
	if req.ExpiresAfter != nil {
		sdkReq.ExpiresAfter = &openai.VectorStoreExpires{Anchor: req.ExpiresAfter.Anchor, Days: req.ExpiresAfter.Days}
	}
	if len(req.Metadata) > 0 {
		sdkReq.Metadata = anyMap(req.Metadata)
	}
	store, err := a.llm.CreateVectorStore(withOperation(ctx, "create_vector_store"), sdkReq)
	if err != nil {
		return nil, sdkError("create_vector_store", err)
	}
	out := &agentenv.VectorStore{ID: store.ID, Name: store.Name, Status: store.Status, CreatedAt: store.CreatedAt}
	if store.ExpiresAfter != nil {
		out.ExpiresAfter = &agentenv.ExpiresAfter{Anchor: store.ExpiresAfter.Anchor, Days: store.ExpiresAfter.Days}
	}
	return out, nil
}

// AddFileToVectorStore indexes an uploaded file into a store.
func (a *Adapter) AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) (*agentenv.VectorStoreFile, error) {
	file, err := a.llm.CreateVectorStoreFile(withOperation(ctx, "add_vector_store_file"), url.PathEscape(vectorStoreID), openai.VectorStoreFileRequest{FileID: fileID})
	if err != nil {
		return nil, sdkError("add_vector_store_file", err)
	}
	return &agentenv.VectorStoreFile{ID: file.ID, VectorStoreID: file.VectorStoreID, Status: file.Status}, nil
}

// QueryVectorStore runs a similarity search and returns the hub's response
// body untouched. Non-2xx responses fail with the status code and text.
func (a *Adapter) QueryVectorStore(ctx context.Context, vectorStoreID, query string) ([]byte, error) {
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req, err := a.newRequest(ctx, "query_vector_store", http.MethodPost, vectorStorePath(vectorStoreID, "search"), nil, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.send(req, "query_vector_store")
}

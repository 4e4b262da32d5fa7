package hub

import (
	"context"
	"io"
	"net/url"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

// DefaultFilePurpose is used for uploads that do not name a purpose.
const DefaultFilePurpose = "assistants"

// File fetches file metadata.
func (a *Adapter) File(ctx context.Context, fileID string) (*agentenv.FileObject, error) {
	file, err := a.llm.GetFile(withOperation(ctx, "get_file"), url.PathEscape(fileID))
	if err != nil {
		return nil, sdkError("get_file", err)
	}
	return fromFile(file), nil
}

// ReadFileContent downloads a file's content as text.
func (a *Adapter) ReadFileContent(ctx context.Context, fileID string) (string, error) {
	raw, err := a.llm.GetFileContent(withOperation(ctx, "read_file_content"), url.PathEscape(fileID))
	if err != nil {
		return "", sdkError("read_file_content", err)
	}
	defer raw.Close()
	data, err := io.ReadAll(raw)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeHubRequestFailed, err, "read_file_content: read response")
	}
	return string(data), nil
}

func fromFile(f openai.File) *agentenv.FileObject {
	return &agentenv.FileObject{
		ID:        f.ID,
		Filename:  f.FileName,
		Purpose:   f.Purpose,
		Bytes:     int64(f.Bytes),
		CreatedAt: f.CreatedAt,
	}
}

func attachmentIDs(messages []agentenv.Message) []string {
	var ids []string
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			if att.FileID != "" {
				ids = append(ids, att.FileID)
			}
		}
	}
	return ids
}

// ListFilesFromThread returns the metadata of every file attached to the
// thread, in attachment order. Lookups run concurrently; failed lookups are
// logged and left out.
func (a *Adapter) ListFilesFromThread(ctx context.Context, order string) ([]agentenv.FileObject, error) {
	messages, err := a.ListMessages(ctx, agentenv.ListOptions{Order: order})
	if err != nil {
		return nil, err
	}
	ids := attachmentIDs(messages)

	resolved := make([]*agentenv.FileObject, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			file, err := a.File(ctx, id)
			if err != nil {
				a.log.Warn("skipping thread file", "file_id", id, "error", err)
				return
			}
			resolved[i] = file
		}(i, id)
	}
	wg.Wait()

	files := make([]agentenv.FileObject, 0, len(ids))
	for _, f := range resolved {
		if f != nil {
			files = append(files, *f)
		}
	}
	return files, nil
}

// LoadThreadFiles fetches every attachment with its content, one at a time,
// into a map keyed by filename. When two attachments share a filename the
// one fetched last wins.
func (a *Adapter) LoadThreadFiles(ctx context.Context) (map[string]agentenv.FileObject, error) {
	messages, err := a.ListMessages(ctx, agentenv.ListOptions{Order: agentenv.OrderAsc})
	if err != nil {
		return nil, err
	}
	files := make(map[string]agentenv.FileObject)
	for _, id := range attachmentIDs(messages) {
		file, err := a.File(ctx, id)
		if err != nil {
			a.log.Warn("skipping thread file", "file_id", id, "error", err)
			continue
		}
		content, err := a.ReadFileContent(ctx, id)
		if err != nil {
			a.log.Warn("skipping thread file content", "file_id", id, "error", err)
			continue
		}
		file.Content = content
		if prev, ok := files[file.Filename]; ok {
			a.log.Warn("thread file name collision, keeping latest", "filename", file.Filename, "replaced", prev.ID, "kept", file.ID)
		}
		files[file.Filename] = *file
	}
	return files, nil
}

// UploadFile sends a multipart upload to /files.
func (a *Adapter) UploadFile(ctx context.Context, upload agentenv.UploadRequest) (*agentenv.FileObject, error) {
	if upload.Filename == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "upload filename is required")
	}
	purpose := upload.Purpose
	if purpose == "" {
		purpose = DefaultFilePurpose
	}
	file, err := a.llm.CreateFileBytes(withOperation(ctx, "upload_file"), openai.FileBytesRequest{
		Name:    upload.Filename,
		Bytes:   upload.Content,
		Purpose: openai.PurposeType(purpose),
	})
	if err != nil {
		return nil, sdkError("upload_file", err)
	}
	return fromFile(file), nil
}

// WriteFile uploads content and posts an assistant message carrying it as
// an attachment, so it shows up in the thread's files.
func (a *Adapter) WriteFile(ctx context.Context, filename, content string) (*agentenv.FileObject, error) {
	file, err := a.UploadFile(ctx, agentenv.UploadRequest{Filename: filename, Content: []byte(content)})
	if err != nil {
		return nil, err
	}
	_, err = a.postMessage(ctx, "write_file", openai.MessageRequest{
		Role:        agentenv.RoleAssistant,
		Content:     filename,
		Attachments: []openai.ThreadAttachment{{FileID: file.ID, Tools: []openai.ThreadAttachmentTool{}}},
		Metadata:    map[string]any{"message_type": "file"},
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

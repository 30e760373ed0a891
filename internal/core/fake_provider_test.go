package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

// fakeProvider is an in-memory stand-in for the provider client. Scripted
// fields are read under mu; zero values give a happy path.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	threadSeq     int
	threadReqs    []provider.CreateThreadRequest
	appended      []provider.MessageInput
	createThread  error
	createMessage error
	createRun     error

	// onCreateThread runs before CreateThread checks ctx.
	onCreateThread func(ctx context.Context)

	initialRunStatus provider.RunStatus
	runStatuses      []provider.RunStatus // successive GetRun results; the last repeats
	runLastError     *provider.RunError
	getRunErrs       []error // returned before any status
	cancelledRuns    []string

	replies []provider.Message
	listErr error
	listReq provider.ListMessagesParams

	fileSeq       int
	uploadedNames []string
	uploadedData  []string
	uploadErr     error
	attachErr     error
	vsStatuses    []string // first is returned by attach
	deleteErr     func(fileID string) error
	deletedFiles  []string

	transcript    string
	transcribeErr error
	sawAudioFile  bool
	speech        []byte
	speechErr     error
	speechReqs    []provider.SpeechRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls:   map[string]int{},
		replies: []provider.Message{assistantText("msg_reply", "Default reply.")},
		speech:  []byte("ID3fake-mp3"),
	}
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) CreateThread(ctx context.Context, req provider.CreateThreadRequest) (*provider.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateThread"]++
	if f.onCreateThread != nil {
		f.onCreateThread(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.createThread != nil {
		return nil, f.createThread
	}
	f.threadSeq++
	f.threadReqs = append(f.threadReqs, req)
	return &provider.Thread{ID: fmt.Sprintf("thread_%d", f.threadSeq)}, nil
}

func (f *fakeProvider) CreateMessage(ctx context.Context, threadID string, msg provider.MessageInput) (*provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateMessage"]++
	if f.createMessage != nil {
		return nil, f.createMessage
	}
	f.appended = append(f.appended, msg)
	return &provider.Message{ID: "msg_user", ThreadID: threadID, Role: msg.Role}, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, threadID string, params provider.ListMessagesParams) ([]provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListMessages"]++
	f.listReq = params
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.replies, nil
}

func (f *fakeProvider) CreateRun(ctx context.Context, threadID, assistantID string) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateRun"]++
	if f.createRun != nil {
		return nil, f.createRun
	}
	status := f.initialRunStatus
	if status == "" {
		status = provider.RunStatusQueued
	}
	return &provider.Run{ID: "run_1", ThreadID: threadID, AssistantID: assistantID, Status: status}, nil
}

func (f *fakeProvider) GetRun(ctx context.Context, threadID, runID string) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetRun"]++
	if len(f.getRunErrs) > 0 {
		err := f.getRunErrs[0]
		f.getRunErrs = f.getRunErrs[1:]
		return nil, err
	}
	status := provider.RunStatusCompleted
	if len(f.runStatuses) > 0 {
		status = f.runStatuses[0]
		if len(f.runStatuses) > 1 {
			f.runStatuses = f.runStatuses[1:]
		}
	}
	run := &provider.Run{ID: runID, ThreadID: threadID, Status: status}
	if classifyRun(status) == runFailed {
		run.LastError = f.runLastError
	}
	return run, nil
}

func (f *fakeProvider) CancelRun(ctx context.Context, threadID, runID string) (*provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CancelRun"]++
	f.cancelledRuns = append(f.cancelledRuns, runID)
	return &provider.Run{ID: runID, Status: provider.RunStatusCancelling}, nil
}

func (f *fakeProvider) UploadFile(ctx context.Context, path, filename, purpose string) (*provider.File, error) {
	data, readErr := os.ReadFile(path)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UploadFile"]++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if readErr != nil {
		return nil, &provider.TransportError{Op: "upload file", Err: readErr}
	}
	f.fileSeq++
	f.uploadedNames = append(f.uploadedNames, filename)
	f.uploadedData = append(f.uploadedData, string(data))
	return &provider.File{ID: fmt.Sprintf("file_%d", f.fileSeq), Filename: filename, Purpose: purpose}, nil
}

func (f *fakeProvider) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteFile"]++
	if f.deleteErr != nil {
		if err := f.deleteErr(fileID); err != nil {
			return err
		}
	}
	f.deletedFiles = append(f.deletedFiles, fileID)
	return nil
}

func (f *fakeProvider) AttachVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*provider.VectorStoreFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["AttachVectorStoreFile"]++
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return &provider.VectorStoreFile{ID: fileID, VectorStoreID: vectorStoreID, Status: f.nextVectorStatus()}, nil
}

func (f *fakeProvider) GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*provider.VectorStoreFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetVectorStoreFile"]++
	return &provider.VectorStoreFile{ID: fileID, VectorStoreID: vectorStoreID, Status: f.nextVectorStatus()}, nil
}

func (f *fakeProvider) nextVectorStatus() string {
	if len(f.vsStatuses) == 0 {
		return vectorFileCompleted
	}
	status := f.vsStatuses[0]
	if len(f.vsStatuses) > 1 {
		f.vsStatuses = f.vsStatuses[1:]
	}
	return status
}

func (f *fakeProvider) Transcribe(ctx context.Context, req provider.TranscriptionRequest) (string, error) {
	_, statErr := os.Stat(req.AudioPath)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Transcribe"]++
	f.sawAudioFile = statErr == nil
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeProvider) Speech(ctx context.Context, req provider.SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Speech"]++
	f.speechReqs = append(f.speechReqs, req)
	if f.speechErr != nil {
		return nil, f.speechErr
	}
	return f.speech, nil
}

func assistantText(id, text string) provider.Message {
	return provider.Message{
		ID:      id,
		Role:    provider.RoleAssistant,
		Content: []provider.ContentPart{{Type: "text", Text: &provider.TextValue{Value: text}}},
	}
}

func userText(id, text string) provider.Message {
	return provider.Message{
		ID:      id,
		Role:    provider.RoleUser,
		Content: []provider.ContentPart{{Type: "text", Text: &provider.TextValue{Value: text}}},
	}
}

func statusErr(code int) error {
	return &provider.TransportError{Op: "test", StatusCode: code, Message: "scripted"}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

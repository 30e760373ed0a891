package core

import (
	"context"

	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

// ThreadAPI is the part of the provider the conversation path needs.
type ThreadAPI interface {
	CreateThread(ctx context.Context, req provider.CreateThreadRequest) (*provider.Thread, error)
	CreateMessage(ctx context.Context, threadID string, msg provider.MessageInput) (*provider.Message, error)
	ListMessages(ctx context.Context, threadID string, params provider.ListMessagesParams) ([]provider.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*provider.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*provider.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*provider.Run, error)
}

// FileAPI is the part of the provider knowledge ingestion needs.
type FileAPI interface {
	UploadFile(ctx context.Context, path, filename, purpose string) (*provider.File, error)
	DeleteFile(ctx context.Context, fileID string) error
	AttachVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*provider.VectorStoreFile, error)
	GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*provider.VectorStoreFile, error)
}

type AudioAPI interface {
	Transcribe(ctx context.Context, req provider.TranscriptionRequest) (string, error)
	Speech(ctx context.Context, req provider.SpeechRequest) ([]byte, error)
}

// ContextStore persists the single conversation context slot.
type ContextStore interface {
	GetContextID(ctx context.Context) (string, error)
	SetContextID(ctx context.Context, id string) error
	ClearContextID(ctx context.Context) error
}

type FileRecordStore interface {
	PutFileRecord(ctx context.Context, name, fileID string) (*store.FileRecord, error)
	RemoveFileRecord(ctx context.Context, name string) (bool, error)
	GetFileRecord(ctx context.Context, name string) (*store.FileRecord, error)
	GetFileRecordByFileID(ctx context.Context, fileID string) (*store.FileRecord, error)
	ListFileRecords(ctx context.Context) ([]store.FileRecord, error)
}

type OrphanStore interface {
	AddOrphan(ctx context.Context, fileID, reason string) error
	ListOrphans(ctx context.Context) ([]store.Orphan, error)
	RemoveOrphan(ctx context.Context, fileID string) error
}

type VoiceLog interface {
	AppendVoiceRecord(ctx context.Context, rec store.VoiceRecord) error
}

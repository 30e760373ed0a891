package core

import (
	"errors"
	"fmt"

	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

// Knowledge file lifecycle.
var (
	ErrUpload          = errors.New("file upload failed")
	ErrLink            = errors.New("vector store link failed")
	ErrProviderDelete  = errors.New("provider file deletion failed")
	ErrInvalidFileName = errors.New("invalid file name")

	ErrDuplicateName = store.ErrDuplicateName
	ErrNotFound      = store.ErrNotFound
)

// Conversation lifecycle.
var (
	ErrContextCreate    = errors.New("conversation context creation failed")
	ErrMessageAppend    = errors.New("message append failed")
	ErrRunStart         = errors.New("run start failed")
	ErrRunPoll          = errors.New("run status check failed")
	ErrRunFailed        = errors.New("run failed")
	ErrRunTimeout       = errors.New("run timed out")
	ErrNoAssistantReply = errors.New("no assistant reply")
)

// Audio lifecycle.
var (
	ErrTranscription    = errors.New("transcription failed")
	ErrSynthesis        = errors.New("speech synthesis failed")
	ErrArtifactNotFound = errors.New("audio artifact not found")
)

// RunError describes a run that reached a terminal status other than
// completed. It matches ErrRunFailed under errors.Is.
type RunError struct {
	RunID   string
	Status  provider.RunStatus
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("run %s ended %s: %s: %s", e.RunID, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("run %s ended %s", e.RunID, e.Status)
}

func (e *RunError) Unwrap() error {
	return ErrRunFailed
}

func newRunError(run *provider.Run) *RunError {
	re := &RunError{RunID: run.ID, Status: run.Status}
	if run.LastError != nil {
		re.Code = run.LastError.Code
		re.Message = run.LastError.Message
	}
	return re
}

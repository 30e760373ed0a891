package provider

// RunStatus is the lifecycle state of a run as reported by the provider.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type MessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateThreadRequest creates a thread, optionally seeded with messages and
// scoped to vector stores for file search.
type CreateThreadRequest struct {
	Messages       []MessageInput
	VectorStoreIDs []string
}

type TextValue struct {
	Value string `json:"value"`
}

// ContentPart is one element of a message's ordered content.
type ContentPart struct {
	Type string     `json:"type"`
	Text *TextValue `json:"text,omitempty"`
}

type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Role      string        `json:"role"`
	Content   []ContentPart `json:"content"`
	RunID     string        `json:"run_id,omitempty"`
	CreatedAt int64         `json:"created_at"`
}

// FirstText returns the value of the first text part.
func (m Message) FirstText() (string, bool) {
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			return part.Text.Value, true
		}
	}
	return "", false
}

type ListMessagesParams struct {
	Limit int
	Order string // "asc" or "desc"
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      RunStatus `json:"status"`
	LastError   *RunError `json:"last_error,omitempty"`
}

type File struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Bytes     int64  `json:"bytes"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// VectorStoreFile is a file attached to a vector store. Status is one of
// in_progress, completed, cancelled or failed.
type VectorStoreFile struct {
	ID            string    `json:"id"`
	VectorStoreID string    `json:"vector_store_id"`
	Status        string    `json:"status"`
	LastError     *RunError `json:"last_error,omitempty"`
}

type TranscriptionRequest struct {
	AudioPath string
	Model     string
	Language  string
}

type SpeechRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type CreateAssistantRequest struct {
	Name           string
	Instructions   string
	Model          string
	VectorStoreIDs []string
}

type Assistant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

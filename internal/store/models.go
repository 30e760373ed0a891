package store

import "time"

// FileRecord tracks one knowledge file ingested into the provider's vector
// store. Name is unique among live records; FileID never changes.
type FileRecord struct {
	Name     string    `json:"file_name"`
	FileID   string    `json:"file_id"`
	Modified time.Time `json:"modified"`
}

type VoiceRecord struct {
	Username        string    `json:"username"`
	TranscribedText string    `json:"transcribed_text"`
	Filename        string    `json:"filename"`
	Timestamp       time.Time `json:"timestamp"`
}

// Orphan is a provider file that was uploaded but never tracked, because
// linking failed and so did the compensating delete.
type Orphan struct {
	FileID    string    `json:"file_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

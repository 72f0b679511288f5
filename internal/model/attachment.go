package model

import "time"

// AttachmentKind distinguishes the capture widgets that produce payloads.
type AttachmentKind string

const (
	AttachmentPhoto     AttachmentKind = "photo"
	AttachmentVoiceNote AttachmentKind = "voice_note"
)

// Attachment is media owned by exactly one job. Payloads are kept local
// only; they are never uploaded. Deleting a job cascades its attachments
// before the job's own deletion is finalized.
type Attachment struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Kind      AttachmentKind `json:"kind"`
	Payload   []byte         `json:"payload"`
	Caption   string         `json:"caption,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

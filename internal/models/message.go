package models

// Message content types.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
)

// ValidMessageType reports whether t is one of the supported content types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeDocument:
		return true
	}
	return false
}

// FileRef points at an uploaded attachment in blob storage.
type FileRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Message represents a persisted chat message.
type Message struct {
	ID        string   `json:"id"` // ULID
	ChatID    string   `json:"chat_id"`
	SenderID  string   `json:"sender_id"`
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	File      *FileRef `json:"file,omitempty"`
	IsRead    bool     `json:"is_read"`
	Timestamp int64    `json:"ts"` // Unix ms
}

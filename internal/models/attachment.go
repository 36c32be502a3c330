package models

import "time"

// Attachment is a stored file referenced by test cases. Bytes live in the
// external storage backend; only the URL and metadata are kept here.
type Attachment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	MimeType  string    `gorm:"size:128" json:"mime_type"`
	SizeBytes int64     `gorm:"default:0" json:"size_bytes"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	PublicID  string    `gorm:"size:255" json:"public_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsImage reports whether the attachment can be passed to a vision model.
func (a Attachment) IsImage() bool {
	switch a.MimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

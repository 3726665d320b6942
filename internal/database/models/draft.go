package models

import "time"

// Draft statuses. A draft starts as pending review; rejected, published and
// failed are terminal.
const (
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
	StatusPublished     = "published"
	StatusFailed        = "failed"
)

// Draft is a candidate post built from an ingested channel message.
// The pair (source_chat_id, source_message_id) is unique: at most one draft
// exists per source post.
type Draft struct {
	ID              int64  `bson:"_id"`
	SourceChatID    int64  `bson:"source_chat_id"`
	SourceMessageID int    `bson:"source_message_id"`

	OriginalText string   `bson:"original_text"`
	Caption      string   `bson:"caption"`
	ImagePrompt  string   `bson:"image_prompt"`
	ImagePaths   []string `bson:"image_paths"`

	Status string `bson:"status"`

	ReviewChatID    int64 `bson:"review_chat_id,omitempty"`
	ReviewMessageID int   `bson:"review_message_id,omitempty"`

	ApprovedAt  *time.Time `bson:"approved_at,omitempty"`
	PublishedAt *time.Time `bson:"published_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ValidTransition reports whether a draft may move from one status to another.
func ValidTransition(from, to string) bool {
	switch from {
	case StatusPendingReview:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusPublished || to == StatusFailed
	default:
		return false
	}
}

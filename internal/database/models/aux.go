package models

import "time"

// Channel is an allow-list entry: posts are only ingested from these channels.
type Channel struct {
	Username  string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// Admin is an authorization entry for the moderation surface.
type Admin struct {
	UserID    int64     `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// Setting is a key/value override of a compiled-in default.
type Setting struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// PostLog stores information about a draft published to the channel.
type PostLog struct {
	DraftID       int64     `bson:"draft_id"`
	Caption       string    `bson:"caption,omitempty"`
	ImageCount    int       `bson:"image_count"`
	Destination   string    `bson:"destination"`
	ChannelPostID int       `bson:"channel_post_id,omitempty"`
	PublishedAt   time.Time `bson:"published_at"`
}

package models

import "time"

// PromptToken maps an opaque token (p_<draft_id>) to the current user-facing
// image prompt of a draft. Overwritten in place on regeneration.
type PromptToken struct {
	Token     string    `bson:"_id"`
	Prompt    string    `bson:"prompt"`
	CreatedAt time.Time `bson:"created_at"`
}

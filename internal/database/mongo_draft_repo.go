package database

import (
	"context"
	"fmt"
	"time"

	"promptika-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const draftCollectionName = "drafts"

// MongoDraftRepository implements DraftRepository for MongoDB.
type MongoDraftRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewMongoDraftRepository creates a new MongoDB draft repository.
func NewMongoDraftRepository(db *mongo.Database) *MongoDraftRepository {
	return &MongoDraftRepository{
		db:         db,
		collection: db.Collection(draftCollectionName),
	}
}

// Create inserts a new draft. A duplicate-key error on the unique source-key
// index means another call already created the draft for this source post; in
// that case the existing draft is read back and returned. This resolves the
// ingest race without any extra locking.
func (r *MongoDraftRepository) Create(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	id, err := nextSequence(ctx, r.db, "drafts")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	draft.ID = id
	draft.Status = models.StatusPendingReview
	if draft.ImagePaths == nil {
		draft.ImagePaths = []string{}
	}
	draft.CreatedAt = now
	draft.UpdatedAt = now

	_, err = r.collection.InsertOne(ctx, draft)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, getErr := r.GetBySource(ctx, draft.SourceChatID, draft.SourceMessageID)
			if getErr != nil {
				return nil, fmt.Errorf("draft exists but re-read failed: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to insert draft: %w", err)
	}
	return draft, nil
}

// GetByID retrieves a draft by its numeric id.
// It returns ErrDraftNotFound if no draft matches.
func (r *MongoDraftRepository) GetByID(ctx context.Context, id int64) (*models.Draft, error) {
	var draft models.Draft
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&draft)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to find draft %d: %w", id, err)
	}
	return &draft, nil
}

// GetBySource retrieves a draft by its source key.
func (r *MongoDraftRepository) GetBySource(ctx context.Context, sourceChatID int64, sourceMessageID int) (*models.Draft, error) {
	var draft models.Draft
	filter := bson.M{"source_chat_id": sourceChatID, "source_message_id": sourceMessageID}
	err := r.collection.FindOne(ctx, filter).Decode(&draft)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to find draft by source %d/%d: %w", sourceChatID, sourceMessageID, err)
	}
	return &draft, nil
}

// SetStatus advances the draft state machine. Transitions that leave a
// terminal state are rejected with ErrInvalidTransition.
func (r *MongoDraftRepository) SetStatus(ctx context.Context, id int64, status string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !models.ValidTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s (draft %d)", ErrInvalidTransition, current.Status, status, id)
	}

	now := time.Now().UTC()
	set := bson.M{"status": status, "updated_at": now}
	switch status {
	case models.StatusApproved:
		set["approved_at"] = now
	case models.StatusPublished:
		set["published_at"] = now
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update status for draft %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrDraftNotFound
	}
	return nil
}

// SetReviewMessage records where the moderation message for a draft lives so
// it can later be edited in place.
func (r *MongoDraftRepository) SetReviewMessage(ctx context.Context, id int64, chatID int64, messageID int) error {
	update := bson.M{"$set": bson.M{
		"review_chat_id":    chatID,
		"review_message_id": messageID,
		"updated_at":        time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set review message for draft %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrDraftNotFound
	}
	return nil
}

// UpdateContent replaces caption, image prompt and image paths in one write so
// concurrent readers never observe a partially regenerated draft.
func (r *MongoDraftRepository) UpdateContent(ctx context.Context, id int64, caption, imagePrompt string, imagePaths []string) error {
	if imagePaths == nil {
		imagePaths = []string{}
	}
	update := bson.M{"$set": bson.M{
		"caption":      caption,
		"image_prompt": imagePrompt,
		"image_paths":  imagePaths,
		"updated_at":   time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update content for draft %d: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrDraftNotFound
	}
	return nil
}

// ListApprovedUnpublished returns approved drafts without a published_at
// stamp, ordered by approval time ascending with id as tiebreaker, bounded by
// limit. SetStatus always stamps approved_at on approval, so the sort key is
// present on every selected row.
func (r *MongoDraftRepository) ListApprovedUnpublished(ctx context.Context, limit int) ([]models.Draft, error) {
	filter := bson.M{
		"status":       models.StatusApproved,
		"published_at": bson.M{"$exists": false},
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "approved_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find approved drafts: %w", err)
	}
	defer cursor.Close(ctx)

	var drafts []models.Draft
	if err = cursor.All(ctx, &drafts); err != nil {
		return nil, fmt.Errorf("failed to decode approved drafts: %w", err)
	}
	return drafts, nil
}

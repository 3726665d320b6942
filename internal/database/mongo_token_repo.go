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

const tokenCollectionName = "prompt_tokens"

// MongoPromptTokenRepository implements PromptTokenRepository for MongoDB.
type MongoPromptTokenRepository struct {
	collection *mongo.Collection
}

// NewMongoPromptTokenRepository creates a new MongoDB prompt token repository.
func NewMongoPromptTokenRepository(db *mongo.Database) *MongoPromptTokenRepository {
	return &MongoPromptTokenRepository{
		collection: db.Collection(tokenCollectionName),
	}
}

// Put upserts the prompt stored under token. Regeneration overwrites the row
// rather than creating a second one.
func (r *MongoPromptTokenRepository) Put(ctx context.Context, token, prompt string) error {
	update := bson.M{
		"$set":         bson.M{"prompt": prompt},
		"$setOnInsert": bson.M{"created_at": time.Now().UTC()},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": token}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert prompt token %q: %w", token, err)
	}
	return nil
}

// Get returns the prompt stored under token, or ErrTokenNotFound.
func (r *MongoPromptTokenRepository) Get(ctx context.Context, token string) (string, error) {
	var doc models.PromptToken
	err := r.collection.FindOne(ctx, bson.M{"_id": token}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to find prompt token %q: %w", token, err)
	}
	return doc.Prompt, nil
}

// Delete removes the token. Deleting an absent token is not an error.
func (r *MongoPromptTokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": token})
	if err != nil {
		return fmt.Errorf("failed to delete prompt token %q: %w", token, err)
	}
	return nil
}

// Count returns the total number of stored tokens.
func (r *MongoPromptTokenRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count prompt tokens: %w", err)
	}
	return n, nil
}

// ListPage returns a page of tokens, newest first.
func (r *MongoPromptTokenRepository) ListPage(ctx context.Context, offset, limit int) ([]models.PromptToken, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var tokens []models.PromptToken
	if err = cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode prompt tokens: %w", err)
	}
	return tokens, nil
}

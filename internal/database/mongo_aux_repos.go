package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"promptika-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	settingCollectionName = "settings"
	channelCollectionName = "channels"
	adminCollectionName   = "admins"
	postLogCollectionName = "post_logs"
)

// MongoSettingRepository implements SettingRepository for MongoDB.
type MongoSettingRepository struct {
	collection *mongo.Collection
}

// NewMongoSettingRepository creates a new MongoDB setting repository.
func NewMongoSettingRepository(db *mongo.Database) *MongoSettingRepository {
	return &MongoSettingRepository{collection: db.Collection(settingCollectionName)}
}

// Get returns the stored value for key, or an empty string when the key has no
// DB override.
func (r *MongoSettingRepository) Get(ctx context.Context, key string) (string, error) {
	var doc models.Setting
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return doc.Value, nil
}

// Set stores or replaces the value for key.
func (r *MongoSettingRepository) Set(ctx context.Context, key, value string) error {
	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// All returns every stored setting, sorted by key.
func (r *MongoSettingRepository) All(ctx context.Context) ([]models.Setting, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer cursor.Close(ctx)

	var settings []models.Setting
	if err = cursor.All(ctx, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

// MongoChannelRepository implements ChannelRepository for MongoDB.
type MongoChannelRepository struct {
	collection *mongo.Collection
}

// NewMongoChannelRepository creates a new MongoDB channel repository.
func NewMongoChannelRepository(db *mongo.Database) *MongoChannelRepository {
	return &MongoChannelRepository{collection: db.Collection(channelCollectionName)}
}

func normalizeChannelUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// List returns the full allow list, oldest entry first.
func (r *MongoChannelRepository) List(ctx context.Context) ([]models.Channel, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer cursor.Close(ctx)

	var channels []models.Channel
	if err = cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return channels, nil
}

// Add inserts a channel username into the allow list. Re-adding an existing
// channel is a no-op.
func (r *MongoChannelRepository) Add(ctx context.Context, username string) error {
	channel := models.Channel{
		Username:  normalizeChannelUsername(username),
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.collection.InsertOne(ctx, channel)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to add channel %q: %w", channel.Username, err)
	}
	return nil
}

// Remove deletes a channel from the allow list and reports how many rows went away.
func (r *MongoChannelRepository) Remove(ctx context.Context, username string) (int64, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": normalizeChannelUsername(username)})
	if err != nil {
		return 0, fmt.Errorf("failed to remove channel %q: %w", username, err)
	}
	return result.DeletedCount, nil
}

// MongoAdminRepository implements AdminRepository for MongoDB.
type MongoAdminRepository struct {
	collection *mongo.Collection
}

// NewMongoAdminRepository creates a new MongoDB admin repository.
func NewMongoAdminRepository(db *mongo.Database) *MongoAdminRepository {
	return &MongoAdminRepository{collection: db.Collection(adminCollectionName)}
}

// List returns all admins, oldest first.
func (r *MongoAdminRepository) List(ctx context.Context) ([]models.Admin, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer cursor.Close(ctx)

	var admins []models.Admin
	if err = cursor.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("failed to decode admins: %w", err)
	}
	return admins, nil
}

// IsAdmin reports whether userID has an admin row.
func (r *MongoAdminRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin %d: %w", userID, err)
	}
	return true, nil
}

// Add grants admin rights to userID. Re-adding is a no-op.
func (r *MongoAdminRepository) Add(ctx context.Context, userID int64) error {
	_, err := r.collection.InsertOne(ctx, models.Admin{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to add admin %d: %w", userID, err)
	}
	return nil
}

// Remove revokes admin rights and reports how many rows went away.
func (r *MongoAdminRepository) Remove(ctx context.Context, userID int64) (int64, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to remove admin %d: %w", userID, err)
	}
	return result.DeletedCount, nil
}

// MongoPostLogger implements PostLogger for MongoDB.
type MongoPostLogger struct {
	collection *mongo.Collection
}

// NewMongoPostLogger creates a new MongoDB post logger.
func NewMongoPostLogger(db *mongo.Database) *MongoPostLogger {
	return &MongoPostLogger{collection: db.Collection(postLogCollectionName)}
}

// LogPublishedPost records a successfully published draft.
func (r *MongoPostLogger) LogPublishedPost(ctx context.Context, log models.PostLog) error {
	if log.PublishedAt.IsZero() {
		log.PublishedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to insert post log for draft %d: %w", log.DraftID, err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxUpsertAttempts bounds retries when concurrent first adds race on the
// unique (user_id, product_id) index.
const maxUpsertAttempts = 3

// MongoRepository stores one document per line item in the cart_items
// collection. Atomicity comes from single-document updates.
type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("cart_items"),
		now:        time.Now,
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "seq", Value: -1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoRepository) List(ctx context.Context, userID string) ([]domain.LineItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}})
	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find cart items: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]domain.LineItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return items, nil
}

func (m *MongoRepository) Get(ctx context.Context, userID, itemID string) (*domain.LineItem, error) {
	var item domain.LineItem
	err := m.collection.FindOne(ctx, bson.M{"_id": itemID, "user_id": userID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

func (m *MongoRepository) AddItem(ctx context.Context, userID, productID string, qty int32, limit int64) (*domain.LineItem, error) {
	if err := validateAdd(userID, productID, qty); err != nil {
		return nil, err
	}
	if int64(qty) > ceiling(limit) {
		return nil, ErrStockExceeded
	}

	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		item, err := m.incrementOrInsert(ctx, userID, productID, qty, limit, true)
		if err == nil {
			return item, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("failed to add item: %w", err)
		}

		// The document exists: either another request inserted it first or the
		// limit filter excluded it. Retry as a plain conditional increment.
		item, err = m.incrementOrInsert(ctx, userID, productID, qty, limit, false)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to add item: %w", err)
		}

		exists, err := m.pairExists(ctx, userID, productID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrStockExceeded
		}
		// removed in between, start over
	}

	return nil, fmt.Errorf("failed to add item after %d attempts", maxUpsertAttempts)
}

func (m *MongoRepository) incrementOrInsert(ctx context.Context, userID, productID string, qty int32, limit int64, upsert bool) (*domain.LineItem, error) {
	now := m.now().UTC()

	filter := bson.M{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   bson.M{"$lte": ceiling(limit) - int64(qty)},
	}

	update := bson.M{
		"$inc": bson.M{"quantity": qty},
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
			"seq":        now.UnixNano(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(upsert).
		SetReturnDocument(options.After)

	var item domain.LineItem
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (m *MongoRepository) pairExists(ctx context.Context, userID, productID string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"user_id": userID, "product_id": productID})
	if err != nil {
		return false, fmt.Errorf("failed to check existing item: %w", err)
	}
	return n > 0, nil
}

func (m *MongoRepository) SetQuantity(ctx context.Context, userID, itemID string, qty int32) error {
	if qty <= 0 {
		return ErrInvalidInput
	}

	filter := bson.M{"_id": itemID, "user_id": userID}
	update := bson.M{
		"$set": bson.M{
			"quantity":   qty,
			"updated_at": m.now().UTC(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, userID, itemID string) (bool, error) {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": itemID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to remove item: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (m *MongoRepository) Clear(ctx context.Context, userID string) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return result.DeletedCount, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}

func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}

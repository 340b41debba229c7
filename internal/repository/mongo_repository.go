package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	OwnerID   string             `bson:"owner_id"`
	Kind      string             `bson:"kind"`
	Lines     []lineDocument     `bson:"lines"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type lineDocument struct {
	ProductID string               `bson:"product_id"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	AddedAt   time.Time            `bson:"added_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func refFilter(ref domain.CartRef) bson.M {
	return bson.M{"owner_id": ref.OwnerID, "kind": string(ref.Kind)}
}

func (m *MongoRepository) GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, refFilter(ref)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := m.now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	lines, err := toLineDocuments(cart.Lines)
	if err != nil {
		return err
	}

	if cart.Version == 0 {
		doc := cartDocument{
			ID:        primitive.NewObjectID(),
			OwnerID:   cart.OwnerID,
			Kind:      string(cart.Kind),
			Lines:     lines,
			Version:   1,
			CreatedAt: cart.CreatedAt,
			UpdatedAt: now,
		}
		if _, err := m.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
		cart.ID = doc.ID.Hex()
		cart.Version = 1
		cart.UpdatedAt = now
		return nil
	}

	filter := refFilter(cart.Ref())
	filter["version"] = cart.Version
	update := bson.M{
		"$set": bson.M{
			"lines":      lines,
			"updated_at": now,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	cart.Version++
	cart.UpdatedAt = now
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, ref domain.CartRef) error {
	result, err := m.collection.DeleteOne(ctx, refFilter(ref))
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "kind", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func toLineDocuments(lines []domain.CartLine) ([]lineDocument, error) {
	docs := make([]lineDocument, 0, len(lines))
	for _, l := range lines {
		price, err := primitive.ParseDecimal128(l.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("encode unit price of %s: %w", l.ProductID, err)
		}
		docs = append(docs, lineDocument{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			AddedAt:   l.AddedAt,
		})
	}
	return docs, nil
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	lines := make([]domain.CartLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		price, err := decimal.NewFromString(l.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode unit price of %s: %w", l.ProductID, err)
		}
		lines = append(lines, domain.CartLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			AddedAt:   l.AddedAt,
		})
	}
	return &domain.Cart{
		ID:        d.ID.Hex(),
		OwnerID:   d.OwnerID,
		Kind:      domain.CartKind(d.Kind),
		Lines:     lines,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

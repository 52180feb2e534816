package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mmeshcher/comproum/internal/model"
)

const (
	// DatabaseName задаёт базу MongoDB для истории.
	DatabaseName = "comproum"
	// CollectionHistory задаёт коллекцию истории предложений.
	CollectionHistory = "offer_history"

	opTimeout = 5 * time.Second
)

type entryDoc struct {
	OfferID      string    `bson:"offer_id"`
	IntentID     string    `bson:"intent_id"`
	ActorID      string    `bson:"actor_id"`
	Action       string    `bson:"action"`
	FromStatus   string    `bson:"from_status,omitempty"`
	ToStatus     string    `bson:"to_status"`
	Price        int64     `bson:"price"`
	CounterPrice *int64    `bson:"counter_price,omitempty"`
	Note         string    `bson:"note,omitempty"`
	At           time.Time `bson:"at"`
}

func toDoc(e Entry) entryDoc {
	return entryDoc{
		OfferID:      e.OfferID.String(),
		IntentID:     e.IntentID.String(),
		ActorID:      e.ActorID.String(),
		Action:       string(e.Action),
		FromStatus:   string(e.FromStatus),
		ToStatus:     string(e.ToStatus),
		Price:        e.Price,
		CounterPrice: e.CounterPrice,
		Note:         e.Note,
		At:           e.At,
	}
}

func fromDoc(d entryDoc) (Entry, error) {
	offerID, err := uuid.FromString(d.OfferID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse offer id: %w", err)
	}
	intentID, err := uuid.FromString(d.IntentID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse intent id: %w", err)
	}
	actorID, err := uuid.FromString(d.ActorID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse actor id: %w", err)
	}
	return Entry{
		OfferID:      offerID,
		IntentID:     intentID,
		ActorID:      actorID,
		Action:       Action(d.Action),
		FromStatus:   model.OfferStatus(d.FromStatus),
		ToStatus:     model.OfferStatus(d.ToStatus),
		Price:        d.Price,
		CounterPrice: d.CounterPrice,
		Note:         d.Note,
		At:           d.At,
	}, nil
}

// MongoLog хранит историю в коллекции MongoDB.
type MongoLog struct {
	collection *mongo.Collection
}

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoLog создаёт историю поверх клиента MongoDB.
func NewMongoLog(client *mongo.Client) *MongoLog {
	return &MongoLog{
		collection: client.Database(DatabaseName).Collection(CollectionHistory),
	}
}

// EnsureIndexes создаёт индекс по предложению и времени записи.
func (l *MongoLog) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "offer_id", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

// Record сохраняет запись.
func (l *MongoLog) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := l.collection.InsertOne(ctx, toDoc(e)); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// History возвращает записи предложения по возрастанию времени.
func (l *MongoLog) History(ctx context.Context, offerID uuid.UUID) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := l.collection.Find(ctx,
		bson.M{"offer_id": offerID.String()},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	defer cursor.Close(ctx)

	var res []Entry
	for cursor.Next(ctx) {
		var d entryDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		e, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return res, nil
}

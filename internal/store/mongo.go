package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "chatrooms"
	usersCollection    = "users"
)

// MongoConfig describes the MongoDB connection.
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// Mongo stores messages and user presence fields in MongoDB.
type Mongo struct {
	client   *mongo.Client
	messages *mongo.Collection
	users    *mongo.Collection
	now      func() time.Time
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	From      string             `bson:"from"`
	To        string             `bson:"to"`
	Text      string             `bson:"message"`
	Timestamp string             `bson:"timestamp"`
	Kind      Kind               `bson:"type"`
	MediaKind MediaKind          `bson:"mediaType,omitempty"`
	SavedBy   []string           `bson:"savedBy"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d messageDoc) message() Message {
	saved := d.SavedBy
	if saved == nil {
		saved = []string{}
	}
	return Message{
		ID:        d.ID.Hex(),
		From:      d.From,
		To:        d.To,
		Text:      d.Text,
		Timestamp: d.Timestamp,
		Kind:      d.Kind,
		MediaKind: d.MediaKind,
		SavedBy:   saved,
		CreatedAt: d.CreatedAt,
	}
}

// NewMongo connects, pings and ensures the query indexes exist.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "nexus"
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}

	m := newMongo(client.Database(cfg.Database))
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func newMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		client:   db.Client(),
		messages: db.Collection(messagesCollection),
		users:    db.Collection(usersCollection),
		now:      time.Now,
	}
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "to", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "type", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "savedBy", Value: 1}}},
	})
	return errors.Wrap(err, "create message indexes")
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CreateMessage implements MessageStore.
func (m *Mongo) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	rec := *msg
	rec.Normalize()
	now := m.now()
	doc := messageDoc{
		From:      rec.From,
		To:        rec.To,
		Text:      rec.Text,
		Timestamp: rec.Timestamp,
		Kind:      rec.Kind,
		MediaKind: rec.MediaKind,
		SavedBy:   rec.SavedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := m.messages.InsertOne(ctx, doc)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	out := doc.message()
	return &out, nil
}

// DeleteMessage implements MessageStore.
func (m *Mongo) DeleteMessage(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.messages.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return errors.Wrapf(err, "delete message %s", id)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) find(ctx context.Context, filter bson.M, sortDir int) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: sortDir}})
	cur, err := m.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.message())
	}
	return out, nil
}

// History implements MessageStore.
func (m *Mongo) History(ctx context.Context, userA, userB string) ([]Message, error) {
	return m.find(ctx, bson.M{"$or": bson.A{
		bson.M{"from": userA, "to": userB},
		bson.M{"from": userB, "to": userA},
	}}, 1)
}

// GroupHistory implements MessageStore.
func (m *Mongo) GroupHistory(ctx context.Context, roomID string) ([]Message, error) {
	return m.find(ctx, bson.M{"to": roomID, "type": KindGroup}, 1)
}

// SavedMessages implements MessageStore.
func (m *Mongo) SavedMessages(ctx context.Context, userID string) ([]Message, error) {
	return m.find(ctx, bson.M{"savedBy": userID}, -1)
}

// Contacts implements MessageStore.
func (m *Mongo) Contacts(ctx context.Context, userID string) ([]Contact, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"type": bson.M{"$ne": KindGroup},
			"$or":  bson.A{bson.M{"from": userID}, bson.M{"to": userID}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$project", Value: bson.M{
			"peer":      bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$from", userID}}, "$to", "$from"}},
			"message":   1,
			"timestamp": 1,
			"createdAt": 1,
		}}},
		{{Key: "$match", Value: bson.M{"peer": bson.M{"$ne": userID}}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$peer",
			"message":   bson.M{"$first": "$message"},
			"timestamp": bson.M{"$first": "$timestamp"},
			"createdAt": bson.M{"$first": "$createdAt"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}

	cur, err := m.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate contacts")
	}
	defer cur.Close(ctx)

	var rows []struct {
		Peer      string    `bson:"_id"`
		Message   string    `bson:"message"`
		Timestamp string    `bson:"timestamp"`
		CreatedAt time.Time `bson:"createdAt"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "decode contacts")
	}
	out := make([]Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, Contact{
			UserID:               r.Peer,
			LastMessage:          r.Message,
			LastMessageTimestamp: r.Timestamp,
			lastAt:               r.CreatedAt,
		})
	}
	return out, nil
}

// ToggleSaved implements MessageStore.
func (m *Mongo) ToggleSaved(ctx context.Context, id, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}

	// Pull first; if nothing was pulled the user had not saved it yet.
	res, err := m.messages.UpdateOne(ctx,
		bson.M{"_id": oid, "savedBy": userID},
		bson.M{"$pull": bson.M{"savedBy": userID}, "$set": bson.M{"updatedAt": m.now()}})
	if err != nil {
		return false, errors.Wrapf(err, "unsave message %s", id)
	}
	if res.ModifiedCount > 0 {
		return false, nil
	}

	res, err = m.messages.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$addToSet": bson.M{"savedBy": userID}, "$set": bson.M{"updatedAt": m.now()}})
	if err != nil {
		return false, errors.Wrapf(err, "save message %s", id)
	}
	if res.MatchedCount == 0 {
		return false, ErrNotFound
	}
	return true, nil
}

// userFilter matches user documents keyed by ObjectID, falling back to the
// raw id for deployments that use string keys.
func userFilter(userID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": userID}
}

// SetUserStatus implements StatusStore.
func (m *Mongo) SetUserStatus(ctx context.Context, userID string, status Status) error {
	_, err := m.users.UpdateOne(ctx, userFilter(userID),
		bson.M{"$set": bson.M{"status": status, "updatedAt": m.now()}})
	return errors.Wrapf(err, "set status %s for %s", status, userID)
}

// SetAvatar implements UserStore.
func (m *Mongo) SetAvatar(ctx context.Context, userID, avatar string) error {
	_, err := m.users.UpdateOne(ctx, userFilter(userID),
		bson.M{"$set": bson.M{"avatar": avatar, "updatedAt": m.now()}})
	return errors.Wrapf(err, "set avatar for %s", userID)
}

package overlay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"overlay-studio/internal/geometry"
)

const (
	DefaultMongoDatabase   = "video-streaming-application"
	DefaultMongoCollection = "overlays_collection"

	serverSelectionTimeout = 5 * time.Second
)

// mongoOverlay is the stored document. Older documents carry the kind under
// "type" and may lack position or size.
type mongoOverlay struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Kind     string             `bson:"kind,omitempty"`
	Type     string             `bson:"type,omitempty"`
	Content  string             `bson:"content"`
	Position *geometry.Position `bson:"position,omitempty"`
	Size     *geometry.Size     `bson:"size,omitempty"`
}

func (d mongoOverlay) toOverlay() Overlay {
	o := Overlay{
		ID:      ID(d.ID.Hex()),
		Kind:    Kind(d.Kind),
		Content: d.Content,
	}
	if o.Kind == "" {
		o.Kind = Kind(d.Type)
	}
	if d.Position != nil {
		o.Position = *d.Position
	}
	if d.Size != nil {
		o.Size = *d.Size
	}
	return o.withDefaults()
}

// MongoStore keeps overlays in a MongoDB collection. Ids are ObjectID hex strings.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo dials uri and pings the primary so a bad URL fails at startup
// rather than on the first request.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo: empty connection uri")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(serverSelectionTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return NewMongoStore(client, client.Database(database).Collection(collection)), nil
}

// NewMongoStore wraps an existing collection. client may be nil when the
// caller owns the connection.
func NewMongoStore(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll}
}

// Close disconnects the client if the store owns one.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// List implements Store.List. Documents come back in natural (insertion) order.
func (s *MongoStore) List(ctx context.Context) ([]Overlay, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoOverlay
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}

	out := make([]Overlay, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toOverlay())
	}
	return out, nil
}

// Insert implements Store.Insert.
func (s *MongoStore) Insert(ctx context.Context, o Overlay) (Overlay, error) {
	pos, size := o.Position, o.Size
	doc := mongoOverlay{
		ID:       primitive.NewObjectID(),
		Kind:     string(o.Kind),
		Content:  o.Content,
		Position: &pos,
		Size:     &size,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return Overlay{}, fmt.Errorf("mongo insert: %w", err)
	}
	o.ID = ID(doc.ID.Hex())
	return o, nil
}

// Update implements Store.Update. Only the fields present in p are $set.
func (s *MongoStore) Update(ctx context.Context, id ID, p Patch) error {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return ErrNotFound
	}

	set := bson.M{}
	if p.Position != nil {
		set["position"] = p.Position
	}
	if p.Size != nil {
		set["size"] = p.Size
	}
	if p.Content != nil {
		set["content"] = *p.Content
	}
	if len(set) == 0 {
		return ErrEmptyPatch
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongo update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.Delete.
func (s *MongoStore) Delete(ctx context.Context, id ID) error {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

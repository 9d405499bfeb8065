package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoVersionKey   = "_version"
	mongoCreatedAtKey = "_createdAt"
	mongoUpdatedAtKey = "_updatedAt"
)

// Mongo maps each collection onto a MongoDB collection of the same name.
// Fields sit at the top level next to the underscore-prefixed metadata.
type Mongo struct {
	db       *mongo.Database
	notifier Notifier
	clock    *clock
}

func NewMongo(database *mongo.Database, n Notifier) *Mongo {
	return &Mongo{db: database, notifier: n, clock: newClock()}
}

func (s *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return documentFromBSON(raw), nil
}

func (s *Mongo) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter := bson.M{}
	for _, f := range q.Where {
		filter[f.Path] = mongoMatch(f.Value, f.OrMissing)
	}
	dir := 1
	if q.Newest {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: mongoCreatedAtKey, Value: dir}, {Key: "_id", Value: dir}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		docs = append(docs, documentFromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Mongo) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Mongo) CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error {
	now := s.clock.next()
	_, canonical, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	doc := bson.M{}
	for k, v := range canonical {
		doc[k] = v
	}
	doc["_id"] = id
	doc[mongoVersionKey] = int64(1)
	doc[mongoCreatedAtKey] = now
	doc[mongoUpdatedAtKey] = now

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Mongo) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.UpdateIf(ctx, collection, id, Condition{}, fields)
}

func (s *Mongo) UpdateIf(ctx context.Context, collection, id string, cond Condition, fields map[string]any) error {
	now := s.clock.next()
	_, canonical, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	set := bson.M{mongoUpdatedAtKey: now}
	for k, v := range canonical {
		set[k] = v
	}

	filter := bson.M{"_id": id}
	if cond.Version != 0 {
		filter[mongoVersionKey] = cond.Version
	}
	if cond.Path != "" {
		filter[cond.Path] = mongoMatch(cond.Equals, cond.OrMissing)
	}

	coll := s.db.Collection(collection)
	res, err := coll.UpdateOne(ctx, filter, bson.M{
		"$set": set,
		"$inc": bson.M{mongoVersionKey: int64(1)},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConditionFailed
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Mongo) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	if s.notifier == nil {
		return nil, errors.New("mongo store has no change notifier")
	}
	return watch(ctx, s.notifier, collection, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}), nil
}

// mongoMatch builds the filter value for one path. Matching null in $in
// also matches documents where the path is absent.
func mongoMatch(value any, orMissing bool) any {
	v := canonicalValue(value)
	if orMissing {
		return bson.M{"$in": bson.A{v, nil}}
	}
	return v
}

func documentFromBSON(raw bson.M) Document {
	doc := Document{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "_id":
			if id, ok := v.(string); ok {
				doc.ID = id
			}
		case mongoVersionKey:
			if n, ok := fromBSON(v).(float64); ok {
				doc.Version = int64(n)
			}
		case mongoCreatedAtKey:
			doc.CreatedAt = bsonTime(v)
		case mongoUpdatedAtKey:
			doc.UpdatedAt = bsonTime(v)
		default:
			doc.Fields[k] = fromBSON(v)
		}
	}
	return doc
}

func bsonTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

// fromBSON converts driver values into the shapes a JSON decode produces so
// callers see the same values from every backend.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = fromBSON(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = fromBSON(x)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = fromBSON(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = fromBSON(x)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

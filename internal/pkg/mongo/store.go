package mongo

import (
	"Huddle/internal/pkg/docstore"
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection = "documents"
	parentField         = "_parent"
)

// Store keeps every document of the tree in one collection keyed by its full
// path. Live queries are served from a change stream, so the server has to
// run as a replica set.
type Store struct {
	col *mongo.Collection
}

var _ docstore.Store = (*Store)(nil)

func NewStore(db *mongo.Database) *Store {
	return &Store{col: db.Collection(documentsCollection)}
}

// EnsureIndexes creates the parent index used by every collection query.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: parentField, Value: 1}},
	})
	return err
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}
	var raw bson.M
	err := s.col.FindOne(ctx, bson.M{"_id": path}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return toDocument(raw), nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, merge bool) error {
	collection, _, err := docstore.Split(path)
	if err != nil {
		return err
	}
	if !merge {
		// sentinels have no replace form, resolve them here
		doc := bson.M{}
		for k, v := range docstore.Resolve(fields, time.Now().UTC()) {
			doc[k] = v
		}
		doc["_id"] = path
		doc[parentField] = collection
		_, err := s.col.ReplaceOne(ctx, bson.M{"_id": path}, doc, options.Replace().SetUpsert(true))
		return err
	}

	update := buildUpdate(fields, true)
	update["$setOnInsert"] = bson.M{parentField: collection}
	_, err = s.col.UpdateOne(ctx, bson.M{"_id": path}, update, options.Update().SetUpsert(true))
	return err
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": path}, buildUpdate(fields, false))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": path})
	return err
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	filter := bson.M{parentField: q.Collection}
	for _, f := range q.Where {
		if f.Op != docstore.OpEqual {
			return nil, errors.New("mongo store: unsupported operator " + string(f.Op))
		}
		if f.Field == docstore.FieldID {
			filter["_id"] = q.Collection + "/" + toString(f.Value)
			continue
		}
		filter[f.Field] = f.Value
	}

	opts := options.Find()
	if q.OrderBy != "" {
		key, dir := q.OrderBy, 1
		if key == docstore.FieldID {
			key = "_id"
		} else if _, ok := filter[key]; !ok {
			filter[key] = bson.M{"$exists": true}
		}
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: key, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	docs := make([]docstore.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		docs = append(docs, toDocument(raw))
	}
	return docs, cursor.Err()
}

// Subscribe re-runs q after every change under its collection.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (func(), error) {
	match := bson.M{"documentKey._id": bson.M{
		"$regex": "^" + regexp.QuoteMeta(q.Collection) + "/[^/]+$",
	}}
	return s.listen(ctx, match, func(ctx context.Context) error {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return err
		}
		fn(docs)
		return nil
	})
}

func (s *Store) Watch(ctx context.Context, path string, fn docstore.DocumentFunc) (func(), error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, err
	}
	match := bson.M{"documentKey._id": path}
	return s.listen(ctx, match, func(ctx context.Context) error {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			_, id, _ := docstore.Split(path)
			fn(docstore.Document{ID: id, Path: path}, false)
			return nil
		}
		if err != nil {
			return err
		}
		fn(doc, true)
		return nil
	})
}

// listen opens the change stream before the first read so nothing committed
// in between is missed, delivers once, then once per change event.
func (s *Store) listen(ctx context.Context, match bson.M, deliver func(context.Context) error) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	stream, err := s.col.Watch(ctx, pipeline)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := deliver(ctx); err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}

	go func() {
		defer func() {
			_ = stream.Close(context.Background())
		}()
		for stream.Next(ctx) {
			// a burst of events collapses into one read
			for stream.RemainingBatchLength() > 0 && stream.Next(ctx) {
			}
			if err := deliver(ctx); err != nil && ctx.Err() == nil {
				log.WarnContext(ctx, "mongo snapshot read failed", "err", err)
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.ErrorContext(ctx, "mongo change stream closed", "err", err)
		}
	}()
	return cancel, nil
}

// buildUpdate turns fields into update operators. With flatten, nested maps
// become dotted keys so a merge keeps sibling entries.
func buildUpdate(fields docstore.Fields, flatten bool) bson.M {
	set, inc, now := bson.M{}, bson.M{}, bson.M{}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + k
			if docstore.IsServerTimestamp(v) {
				now[key] = true
				continue
			}
			if n, ok := docstore.IncrementValue(v); ok {
				inc[key] = n
				continue
			}
			if nested, ok := v.(docstore.Fields); ok {
				v = map[string]any(nested)
			}
			if nested, ok := v.(map[string]any); ok && flatten && len(nested) > 0 {
				walk(key+".", nested)
				continue
			}
			set[key] = v
		}
	}
	walk("", fields)

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(now) > 0 {
		update["$currentDate"] = now
	}
	return update
}

func toDocument(raw bson.M) docstore.Document {
	path, _ := raw["_id"].(string)
	fields := docstore.Fields{}
	for k, v := range raw {
		if k == "_id" || k == parentField {
			continue
		}
		fields[k] = fromBSON(v)
	}
	id := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		id = path[i+1:]
	}
	return docstore.Document{ID: id, Path: path, Fields: fields}
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromBSON(item)
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
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case int32:
		return int64(t)
	}
	return v
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

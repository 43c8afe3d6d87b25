package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// slotDocument is the MongoDB representation of a single slot.
type slotDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	Origin    string    `bson:"origin"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// slotChangeEvent is the subset of a change stream event we decode.
type slotChangeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		Key string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *slotDocument `bson:"fullDocument"`
}

// MongoBackend is a [Backend] that keeps each slot in its own MongoDB document.
//
// Every MongoBackend has a unique origin id that is stamped on the documents
// it writes. Change stream events carrying the backend's own origin are
// skipped, so a process is only told about writes made elsewhere.
//
// Change streams require MongoDB to run as a replica set or sharded cluster.
type MongoBackend struct {
	coll   *mongo.Collection
	origin string
	logger *slog.Logger
}

// NewMongoBackend creates a [MongoBackend] on the given collection.
//
// If logger is nil, [slog.Default] is used.
func NewMongoBackend(coll *mongo.Collection, logger *slog.Logger) *MongoBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoBackend{
		coll:   coll,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Origin returns the id stamped on documents written by this backend.
func (b *MongoBackend) Origin() string {
	return b.origin
}

// Read implements [Backend].
func (b *MongoBackend) Read(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	var doc slotDocument
	err := b.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return doc.Value, true, nil
}

// Write implements [Backend].
func (b *MongoBackend) Write(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	update := bson.M{"$set": bson.M{
		"value":      value,
		"origin":     b.origin,
		"updated_at": time.Now().UTC(),
	}}
	_, err := b.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

// Delete implements [Backend].
func (b *MongoBackend) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := b.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

// Change stream reopen backoff.
const (
	minRewatchDelay = 500 * time.Millisecond
	maxRewatchDelay = 30 * time.Second
)

// changeStream is the part of [mongo.ChangeStream] a watcher consumes.
type changeStream interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	ResumeToken() bson.Raw
	Close(ctx context.Context) error
}

// OnExternalChange implements [Backend] with a change stream on key.
//
// The stream is opened before OnExternalChange returns, so an error is
// reported if the deployment does not support change streams. fn is called
// from the stream goroutine. Delete events are reported with Deleted set,
// including deletes made by this backend, because the deleted document's
// origin is no longer available.
//
// If the stream fails it is reopened after the last event seen, with
// exponential backoff, until ctx is done. When the stream cannot be resumed
// a fresh one is opened and the current value, if written elsewhere, is
// reported as a change.
func (b *MongoBackend) OnExternalChange(ctx context.Context, key string, fn func(Change)) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	streamCtx, cancel := context.WithCancel(ctx)
	w := &slotWatcher{
		backend:  b,
		key:      key,
		fn:       fn,
		open:     func(ctx context.Context, resumeAfter bson.Raw) (changeStream, error) { return b.watch(ctx, key, resumeAfter) },
		current:  func(ctx context.Context) (*slotDocument, error) { return b.current(ctx, key) },
		minDelay: minRewatchDelay,
		maxDelay: maxRewatchDelay,
	}

	stream, err := w.open(streamCtx, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch slot %q: %w", key, err)
	}
	go w.run(streamCtx, stream)

	return cancel, nil
}

func (b *MongoBackend) watch(ctx context.Context, key string, resumeAfter bson.Raw) (changeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: key}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}
	return b.coll.Watch(ctx, pipeline, opts)
}

// current returns the stored document for key, nil if absent.
func (b *MongoBackend) current(ctx context.Context, key string) (*slotDocument, error) {
	var doc slotDocument
	err := b.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// slotWatcher follows one slot's change stream and keeps it open.
type slotWatcher struct {
	backend *MongoBackend
	key     string
	fn      func(Change)

	open    func(ctx context.Context, resumeAfter bson.Raw) (changeStream, error)
	current func(ctx context.Context) (*slotDocument, error)

	minDelay time.Duration
	maxDelay time.Duration
}

// run consumes stream and reopens it whenever it stops, until ctx is done.
func (w *slotWatcher) run(ctx context.Context, stream changeStream) {
	logger := w.backend.logger
	delay := w.minDelay

	for {
		delivered, err := w.consume(ctx, stream)
		token := stream.ResumeToken()
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		if delivered {
			delay = w.minDelay
		}
		logger.Error("slot change stream stopped", "key", w.key, "error", err, "retry_in", delay)

		stream, delay = w.reopen(ctx, token, delay)
		if stream == nil {
			return
		}
	}
}

// consume delivers events until the stream stops. delivered reports whether
// any event was read.
func (w *slotWatcher) consume(ctx context.Context, stream changeStream) (delivered bool, err error) {
	for stream.Next(ctx) {
		delivered = true

		var event slotChangeEvent
		if err := stream.Decode(&event); err != nil {
			w.backend.logger.Warn("failed to decode slot change", "key", w.key, "error", err)
			continue
		}
		if change, ok := w.backend.toChange(event); ok {
			w.fn(change)
		}
	}
	if err := stream.Err(); err != nil {
		return delivered, err
	}
	return delivered, errors.New("change stream closed")
}

// reopen waits out delay and opens a new stream, resuming after token when
// possible. It returns nil once ctx is done, and the delay for the next
// failure.
func (w *slotWatcher) reopen(ctx context.Context, token bson.Raw, delay time.Duration) (changeStream, time.Duration) {
	logger := w.backend.logger

	for {
		select {
		case <-ctx.Done():
			return nil, delay
		case <-time.After(delay):
		}
		delay = min(delay*2, w.maxDelay)

		if token != nil {
			stream, err := w.open(ctx, token)
			if err == nil {
				logger.Info("slot change stream resumed", "key", w.key)
				return stream, delay
			}
			// the token may have left the oplog; start over below
			logger.Warn("failed to resume slot change stream", "key", w.key, "error", err)
		}

		stream, err := w.open(ctx, nil)
		if err != nil {
			logger.Warn("failed to reopen slot change stream", "key", w.key, "error", err, "retry_in", delay)
			continue
		}
		logger.Info("slot change stream reopened", "key", w.key)
		w.resync(ctx)
		return stream, delay
	}
}

// resync reports the current value after changes may have been missed.
func (w *slotWatcher) resync(ctx context.Context) {
	doc, err := w.current(ctx)
	if err != nil {
		w.backend.logger.Warn("failed to resync slot", "key", w.key, "error", err)
		return
	}
	if doc == nil || doc.Origin == w.backend.origin {
		return
	}
	w.fn(Change{Key: w.key, NewValue: doc.Value})
}

// toChange converts a change stream event. ok is false for events that
// should not be reported.
func (b *MongoBackend) toChange(event slotChangeEvent) (Change, bool) {
	switch event.OperationType {
	case "insert", "update", "replace":
		// nil when the document was deleted before the lookup ran
		if event.FullDocument == nil || event.FullDocument.Origin == b.origin {
			return Change{}, false
		}
		return Change{Key: event.DocumentKey.Key, NewValue: event.FullDocument.Value}, true
	case "delete":
		return Change{Key: event.DocumentKey.Key, Deleted: true}, true
	default:
		return Change{}, false
	}
}

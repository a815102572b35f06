// Package resolver runs the per-sighting pipeline: session bookkeeping,
// person tracking, embedding and similarity lookup, confidence fusion,
// broadcast and publication of identifications.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sightline/internal/domain/confidence"
	"github.com/okian/sightline/internal/domain/dedupe"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/tracking"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default resolver configuration constants.
const (
	defaultEmbeddingDim  = 512
	defaultTopK          = 5
	defaultSessionWindow = 60 * time.Second
	defaultCallTimeout   = 10 * time.Second
)

// Embedder produces a face embedding for an opaque face-crop reference.
type Embedder interface {
	Embed(ctx context.Context, faceCrop string) ([]float32, error)
}

// Searcher returns the nearest known identities for an embedding.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]model.Candidate, error)
}

// Publisher delivers an identification downstream.
type Publisher interface {
	Publish(ctx context.Context, event model.IdentifiedCustomerEvent) error
}

// Broadcaster hands a tracking update to live subscribers without blocking.
type Broadcaster interface {
	Publish(ctx context.Context, update model.TrackingUpdate) bool
}

// Outcome summarises what processing one sighting did.
type Outcome struct {
	SessionID string
	PersonID  string
	// Identification is set when the session crossed the threshold.
	Identification *model.Identification
	// Emitted reports that an IdentifiedCustomerEvent was published.
	Emitted bool
	// Fallback reports that the embedding could not be obtained.
	Fallback bool
}

// Resolver is the per-sighting orchestrator. It is not safe for concurrent
// use on overlapping sessions; run it from a single consumer.
type Resolver struct {
	aggregator  *confidence.Aggregator
	tracker     *tracking.Manager
	embedder    Embedder
	searcher    Searcher
	publisher   Publisher
	broadcaster Broadcaster
	guard       dedupe.Deduper

	embeddingDim  int
	topK          int
	sessionWindow time.Duration
	callTimeout   time.Duration

	logger logger.Logger
}

// New wires a resolver. Broadcaster and emission guard are optional.
func New(
	aggregator *confidence.Aggregator,
	tracker *tracking.Manager,
	embedder Embedder,
	searcher Searcher,
	publisher Publisher,
	opts ...Option,
) *Resolver {
	r := &Resolver{
		aggregator:    aggregator,
		tracker:       tracker,
		embedder:      embedder,
		searcher:      searcher,
		publisher:     publisher,
		embeddingDim:  defaultEmbeddingDim,
		topK:          defaultTopK,
		sessionWindow: defaultSessionWindow,
		callTimeout:   defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.NamedOrNop("resolver")
	}
	if r.guard == nil {
		r.guard = dedupe.NewInMemoryDeduper()
	}
	return r
}

// Handle processes one sighting and never fails: malformed events and panics
// are logged with the payload and counted as drops. Processing is detached
// from ctx cancellation so an in-flight event always completes.
func (r *Resolver) Handle(ctx context.Context, event model.SightingEvent) {
	ctx = context.WithoutCancel(ctx)
	if _, err := r.safeProcess(ctx, event); err != nil {
		reason := "malformed"
		if errors.Is(err, ErrPanic) {
			reason = "panic"
		}
		metrics.RecordSightingDropped(reason)
		r.logger.Error(ctx, "sighting dropped",
			logger.String("reason", reason),
			logger.String("payload", payload(event)),
			logger.Error(err),
		)
	}
}

func (r *Resolver) safeProcess(ctx context.Context, event model.SightingEvent) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return r.Process(ctx, event)
}

// Process runs the pipeline for one sighting. The only error is a sighting
// that fails validation; collaborator and store failures degrade to safe
// defaults and publication loss is logged.
func (r *Resolver) Process(ctx context.Context, event model.SightingEvent) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return Outcome{}, err
	}
	start := time.Now()
	defer func() { metrics.RecordSightingProcessed(time.Since(start)) }()

	out := Outcome{SessionID: model.SessionID(event.CameraID, event.Timestamp, r.sessionWindow)}
	log := r.logger.With(
		logger.String("session_id", out.SessionID),
		logger.String("camera_id", event.CameraID),
	)

	r.aggregator.Touch(ctx, out.SessionID, event.CameraID, event.Timestamp)
	out.PersonID = r.tracker.Assign(ctx, event.CameraID, event.Timestamp, event.Position)

	embedding, ok := r.embed(ctx, log, event.FaceCrop)
	out.Fallback = !ok
	if ok {
		for _, c := range r.search(ctx, log, embedding) {
			r.aggregator.Update(ctx, out.SessionID, c.IdentityID, c.Distance)
		}
	}

	var identityID string
	var score float64
	if id, found := r.aggregator.Check(ctx, out.SessionID); found {
		out.Identification = &id
		identityID = id.IdentityID
		score = id.Score
	}

	r.tracker.Update(ctx, out.PersonID, event.CameraID, event.Timestamp, event.Position, identityID)
	r.broadcast(ctx, event, out.PersonID, identityID, score)

	if out.Identification != nil {
		out.Emitted = r.emit(ctx, log, out.SessionID, *out.Identification)
		r.aggregator.Delete(ctx, out.SessionID)
	}
	return out, nil
}

// embed returns the embedding, or a zero vector and false on failure.
func (r *Resolver) embed(ctx context.Context, log logger.Logger, faceCrop string) ([]float32, bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	vec, err := r.embedder.Embed(callCtx, faceCrop)
	if err != nil {
		metrics.RecordFallback("embedding")
		log.Warn(ctx, "embedding unavailable, using placeholder", logger.Error(err))
		return make([]float32, r.embeddingDim), false
	}
	return vec, true
}

func (r *Resolver) search(ctx context.Context, log logger.Logger, embedding []float32) []model.Candidate {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	candidates, err := r.searcher.Search(callCtx, embedding, r.topK)
	if err != nil {
		metrics.RecordFallback("similarity")
		log.Warn(ctx, "similarity search unavailable, no candidates", logger.Error(err))
		return nil
	}
	return candidates
}

func (r *Resolver) broadcast(ctx context.Context, event model.SightingEvent, personID, identityID string, score float64) {
	if r.broadcaster == nil {
		return
	}
	obj := model.TrackedObject{
		PersonID:   personID,
		CameraID:   event.CameraID,
		Timestamp:  event.Timestamp,
		Position:   event.Position,
		Confidence: score,
	}
	if identityID != "" {
		obj.CustomerID = &identityID
	}
	r.broadcaster.Publish(ctx, model.TrackingUpdate{
		CameraID:  event.CameraID,
		Timestamp: event.Timestamp,
		Objects:   []model.TrackedObject{obj},
	})
}

// emit publishes id once per session. A lost publication releases the
// session so a later identification may try again.
func (r *Resolver) emit(ctx context.Context, log logger.Logger, sessionID string, id model.Identification) bool {
	metrics.RecordIdentification()
	if r.guard.SeenAndRecord(ctx, sessionID) {
		metrics.RecordSuppressedIdentification()
		log.Debug(ctx, "identification already emitted", logger.String("customer_id", id.IdentityID))
		return false
	}

	event := model.IdentifiedCustomerEvent{
		CustomerID: id.IdentityID,
		Confidence: id.Score,
		CameraID:   id.Meta.CameraID,
		Timestamp:  id.Meta.Timestamp,
	}
	if event.CameraID == "" {
		event.CameraID = cameraFromSession(sessionID)
	}

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.guard.Unrecord(ctx, sessionID)
		metrics.RecordIdentificationLost()
		log.Error(ctx, "identified event lost",
			logger.String("customer_id", event.CustomerID),
			logger.Float64("confidence", event.Confidence),
			logger.Error(err),
		)
		return false
	}
	log.Info(ctx, "customer identified",
		logger.String("customer_id", event.CustomerID),
		logger.Float64("confidence", event.Confidence),
	)
	return true
}

// cameraFromSession strips the bucket suffix from a session id.
func cameraFromSession(sessionID string) string {
	for i := len(sessionID) - 1; i >= 0; i-- {
		if sessionID[i] == '_' {
			return sessionID[:i]
		}
	}
	return sessionID
}

func payload(event model.SightingEvent) string {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Sprintf("%+v", event)
	}
	return string(data)
}

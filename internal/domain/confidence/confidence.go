// Package confidence fuses repeated similarity evidence into a per-session,
// per-candidate confidence score and decides when a session is identified.
package confidence

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/sightline/internal/adapters/store"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default aggregator configuration constants.
const (
	defaultThreshold      = 95.0
	defaultSessionTimeout = 300 * time.Second

	sessionPrefix = "session:"
	component     = "confidence"
)

// Aggregator owns session and candidate-confidence state in the store.
// Store failures never propagate out of Touch, Update, Check or Delete: they are
// logged and treated as "no information".
type Aggregator struct {
	store     store.Store
	threshold float64
	ttl       time.Duration
	logger    logger.Logger
}

// New constructs an Aggregator over s.
func New(s store.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     s,
		threshold: defaultThreshold,
		ttl:       defaultSessionTimeout,
		logger:    logger.NamedOrNop(component),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Score converts a similarity distance into a confidence in [0,100].
func Score(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	s := 100 - distance*100
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

func sessionKey(sessionID string) string { return sessionPrefix + sessionID }

func candidatePrefix(sessionID string) string { return sessionKey(sessionID) + ":" }

func candidateKey(sessionID, candidateID string) string {
	return candidatePrefix(sessionID) + candidateID
}

// Touch records the session's camera and latest timestamp and refreshes its TTL.
func (a *Aggregator) Touch(ctx context.Context, sessionID, cameraID string, ts time.Time) {
	key := sessionKey(sessionID)
	err := a.store.HSet(ctx, key, map[string]string{
		"camera_id": cameraID,
		"timestamp": model.FormatTimestamp(ts),
	})
	if err == nil {
		err = a.store.Expire(ctx, key, a.ttl)
	}
	if err != nil {
		a.storeError(ctx, "touch", sessionID, err)
	}
}

// Update folds one similarity hit into the session. The stored score only
// ever increases; both the candidate and session TTLs are refreshed.
func (a *Aggregator) Update(ctx context.Context, sessionID, candidateID string, distance float64) {
	score := Score(distance)
	key := candidateKey(sessionID, candidateID)

	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.storeError(ctx, "get", sessionID, err)
		return
	}
	current := 0.0
	if ok {
		if current, err = strconv.ParseFloat(raw, 64); err != nil {
			a.logger.Warn(ctx, "unreadable candidate score, treating as zero",
				logger.String("key", key), logger.String("value", raw))
			current = 0
		}
	}

	if score > current {
		if err := a.store.Set(ctx, key, strconv.FormatFloat(score, 'f', -1, 64), a.ttl); err != nil {
			a.storeError(ctx, "set", sessionID, err)
			return
		}
		metrics.RecordConfidenceUpdate()
	} else if err := a.store.Expire(ctx, key, a.ttl); err != nil {
		a.storeError(ctx, "expire", sessionID, err)
		return
	}

	if err := a.store.Expire(ctx, sessionKey(sessionID), a.ttl); err != nil {
		a.storeError(ctx, "expire", sessionID, err)
	}
}

// Check returns the identification for a session if any candidate's score is
// strictly above the threshold. The highest score wins; ties go to the
// lexicographically smallest candidate id.
func (a *Aggregator) Check(ctx context.Context, sessionID string) (model.Identification, bool) {
	scores, err := a.candidates(ctx, sessionID)
	if err != nil {
		a.storeError(ctx, "check", sessionID, err)
		return model.Identification{}, false
	}

	var best *model.CandidateScore
	for i := range scores {
		c := &scores[i]
		if c.Score <= a.threshold {
			continue
		}
		if best == nil || c.Score > best.Score || (c.Score == best.Score && c.IdentityID < best.IdentityID) {
			best = c
		}
	}
	if best == nil {
		return model.Identification{}, false
	}

	meta, err := a.meta(ctx, sessionID)
	if err != nil {
		a.storeError(ctx, "check", sessionID, err)
		return model.Identification{}, false
	}
	out := model.Identification{IdentityID: best.IdentityID, Score: best.Score}
	if meta != nil {
		out.Meta = *meta
	}
	return out, true
}

// Delete removes the session record and every candidate score under it.
func (a *Aggregator) Delete(ctx context.Context, sessionID string) {
	keys, err := a.store.Keys(ctx, candidatePrefix(sessionID))
	if err != nil {
		a.storeError(ctx, "delete", sessionID, err)
		return
	}
	keys = append(keys, sessionKey(sessionID))
	if err := a.store.Del(ctx, keys...); err != nil {
		a.storeError(ctx, "delete", sessionID, err)
		return
	}
	a.logger.Debug(ctx, "session deleted", logger.String("session_id", sessionID))
}

// Scores returns a snapshot of a session for the query surface.
// It reports ErrSessionNotFound when neither metadata nor scores exist.
func (a *Aggregator) Scores(ctx context.Context, sessionID string) (model.SessionConfidence, error) {
	scores, err := a.candidates(ctx, sessionID)
	if err != nil {
		return model.SessionConfidence{}, err
	}
	meta, err := a.meta(ctx, sessionID)
	if err != nil {
		return model.SessionConfidence{}, err
	}
	if meta == nil && len(scores) == 0 {
		return model.SessionConfidence{}, ErrSessionNotFound
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].IdentityID < scores[j].IdentityID
	})
	return model.SessionConfidence{SessionID: sessionID, Meta: meta, Candidates: scores}, nil
}

// candidates reads every candidate score of a session.
func (a *Aggregator) candidates(ctx context.Context, sessionID string) ([]model.CandidateScore, error) {
	prefix := candidatePrefix(sessionID)
	keys, err := a.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]model.CandidateScore, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := a.store.Get(ctx, key)
		if errors.Is(err, store.ErrWrongType) {
			a.logger.Debug(ctx, "skipping non-score key under candidate prefix", logger.String("key", key))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			a.logger.Warn(ctx, "skipping unreadable candidate score",
				logger.String("key", key), logger.String("value", raw))
			continue
		}
		out = append(out, model.CandidateScore{
			IdentityID: strings.TrimPrefix(key, prefix),
			Score:      score,
		})
	}
	return out, nil
}

func (a *Aggregator) meta(ctx context.Context, sessionID string) (*model.SessionMeta, error) {
	fields, err := a.store.HGetAll(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	m := &model.SessionMeta{CameraID: fields["camera_id"]}
	if ts, err := model.ParseTimestamp(fields["timestamp"]); err == nil {
		m.Timestamp = ts
	}
	return m, nil
}

func (a *Aggregator) storeError(ctx context.Context, op, sessionID string, err error) {
	metrics.RecordStoreError(component, op)
	a.logger.Error(ctx, "state store operation failed, skipping",
		logger.String("op", op),
		logger.String("session_id", sessionID),
		logger.Error(err),
	)
}

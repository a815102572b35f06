// Package tracking correlates anonymous detections into persistent person
// tracks by spatiotemporal proximity.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sightline/internal/adapters/store"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default tracking configuration constants.
const (
	defaultTimeWindow    = 30 * time.Second
	defaultRadius        = 50.0
	defaultRecentSamples = 10
	defaultHistoryLimit  = 100
	defaultTrackingTTL   = 3600 * time.Second

	personPrefix    = "person:"
	positionsSuffix = ":positions"
	component       = "tracking"
	lockStripes     = 64
)

// Manager assigns person ids and maintains their tracks in the store.
type Manager struct {
	store         store.Store
	window        time.Duration
	radius        float64
	recentSamples int
	historyLimit  int
	ttl           time.Duration
	newID         func() string
	logger        logger.Logger

	// locks serialise the read-merge-write of a person's track; a person id
	// always maps to the same stripe.
	locks [lockStripes]sync.Mutex
}

// New constructs a Manager over s.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:         s,
		window:        defaultTimeWindow,
		radius:        defaultRadius,
		recentSamples: defaultRecentSamples,
		historyLimit:  defaultHistoryLimit,
		ttl:           defaultTrackingTTL,
		newID:         uuid.NewString,
		logger:        logger.NamedOrNop(component),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lockFor(personID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(personID))
	return &m.locks[h.Sum32()%lockStripes]
}

func personKey(personID string) string    { return personPrefix + personID }
func positionsKey(personID string) string { return personPrefix + personID + positionsSuffix }

// Assign returns the person id of the nearest track that has a recent sample
// within the time window and radius of the sighting, or a fresh id when none
// qualifies. Store failures also yield a fresh id.
func (m *Manager) Assign(ctx context.Context, cameraID string, ts time.Time, pos model.Position) string {
	candidates, err := m.candidateSamples(ctx, ts)
	if err != nil {
		metrics.RecordStoreError(component, "assign")
		m.logger.Error(ctx, "failed to scan tracks, minting new person",
			logger.String("camera_id", cameraID), logger.Error(err))
		return m.mint(ctx, cameraID)
	}

	if best, ok := nearest(candidates, pos, m.radius); ok {
		metrics.RecordTrackMatched()
		return best.personID
	}
	return m.mint(ctx, cameraID)
}

func (m *Manager) mint(ctx context.Context, cameraID string) string {
	id := m.newID()
	metrics.RecordTrackCreated()
	m.logger.Info(ctx, "new person assigned",
		logger.String("person_id", id), logger.String("camera_id", cameraID))
	return id
}

// candidateSamples collects the last samples of every live track whose
// timestamp lies within the window of ts.
func (m *Manager) candidateSamples(ctx context.Context, ts time.Time) ([]sample, error) {
	keys, err := m.store.Keys(ctx, personPrefix)
	if err != nil {
		return nil, err
	}

	var out []sample
	for _, key := range keys {
		if !strings.HasSuffix(key, positionsSuffix) {
			continue
		}
		personID := strings.TrimSuffix(strings.TrimPrefix(key, personPrefix), positionsSuffix)
		raw, err := m.store.LRange(ctx, key, -int64(m.recentSamples), -1)
		if err != nil {
			return nil, err
		}
		for _, r := range raw {
			var ps model.PositionSample
			if err := json.Unmarshal([]byte(r), &ps); err != nil {
				m.logger.Warn(ctx, "skipping unreadable position sample",
					logger.String("person_id", personID), logger.Error(err))
				continue
			}
			dt := ts.Sub(ps.Timestamp)
			if dt < 0 {
				dt = -dt
			}
			if dt > m.window {
				continue
			}
			out = append(out, sample{personID: personID, ts: ps.Timestamp, x: ps.Position.X, y: ps.Position.Y})
		}
	}
	return out, nil
}

// Update records a sighting on the person's track. identityID may be empty.
// A track's resolved identity is set at most once: a later, different
// identity never replaces it.
func (m *Manager) Update(ctx context.Context, personID, cameraID string, ts time.Time, pos model.Position, identityID string) {
	mu := m.lockFor(personID)
	mu.Lock()
	defer mu.Unlock()
	if err := m.update(ctx, personID, cameraID, ts, pos, identityID); err != nil {
		m.logger.Error(ctx, "failed to update person tracking",
			logger.String("person_id", personID), logger.Error(err))
	}
}

func (m *Manager) update(ctx context.Context, personID, cameraID string, ts time.Time, pos model.Position, identityID string) error {
	pkey := personKey(personID)
	fields, err := m.store.HGetAll(ctx, pkey)
	if err != nil {
		metrics.RecordStoreError(component, "hgetall")
		return err
	}

	stamp := model.FormatTimestamp(ts)
	var cameras []string
	if len(fields) == 0 {
		fields = map[string]string{"first_seen": stamp, "customer_id": identityID}
	} else {
		if c := fields["cameras"]; c != "" {
			if err := json.Unmarshal([]byte(c), &cameras); err != nil {
				m.logger.Warn(ctx, "resetting unreadable camera list",
					logger.String("person_id", personID), logger.Error(err))
				cameras = nil
			}
		}
		if _, ok := fields["first_seen"]; !ok {
			fields["first_seen"] = stamp
		}
		switch existing := fields["customer_id"]; {
		case existing == "" && identityID != "":
			fields["customer_id"] = identityID
		case existing != "" && identityID != "" && existing != identityID:
			m.logger.Warn(ctx, "track already resolved, keeping first identity",
				logger.String("person_id", personID),
				logger.String("resolved", existing),
				logger.String("ignored", identityID))
		}
	}
	if !slices.Contains(cameras, cameraID) {
		cameras = append(cameras, cameraID)
	}
	encoded, err := json.Marshal(cameras)
	if err != nil {
		return err
	}
	fields["cameras"] = string(encoded)
	fields["last_seen"] = stamp

	if err := m.store.HSet(ctx, pkey, fields); err != nil {
		metrics.RecordStoreError(component, "hset")
		return err
	}
	if err := m.store.Expire(ctx, pkey, m.ttl); err != nil {
		metrics.RecordStoreError(component, "expire")
		return err
	}

	entry, err := json.Marshal(model.PositionSample{Timestamp: ts.UTC(), CameraID: cameraID, Position: pos})
	if err != nil {
		return err
	}
	lkey := positionsKey(personID)
	if err := m.store.RPush(ctx, lkey, string(entry)); err != nil {
		metrics.RecordStoreError(component, "rpush")
		return err
	}
	if err := m.store.Expire(ctx, lkey, m.ttl); err != nil {
		metrics.RecordStoreError(component, "expire")
		return err
	}
	if err := m.store.LTrim(ctx, lkey, -int64(m.historyLimit), -1); err != nil {
		metrics.RecordStoreError(component, "ltrim")
		return err
	}

	m.logger.Debug(ctx, "person tracking updated",
		logger.String("person_id", personID), logger.String("camera_id", cameraID))
	return nil
}

// Get returns a snapshot of a track, or ErrTrackNotFound.
func (m *Manager) Get(ctx context.Context, personID string) (model.PersonTrack, error) {
	fields, err := m.store.HGetAll(ctx, personKey(personID))
	if err != nil {
		return model.PersonTrack{}, fmt.Errorf("read track %s: %w", personID, err)
	}
	if len(fields) == 0 {
		return model.PersonTrack{}, ErrTrackNotFound
	}

	track := model.PersonTrack{PersonID: personID, Cameras: []string{}, Positions: []model.PositionSample{}}
	track.FirstSeen, _ = model.ParseTimestamp(fields["first_seen"])
	track.LastSeen, _ = model.ParseTimestamp(fields["last_seen"])
	if id := fields["customer_id"]; id != "" {
		track.ResolvedIdentityID = &id
	}
	if c := fields["cameras"]; c != "" {
		if err := json.Unmarshal([]byte(c), &track.Cameras); err != nil {
			return model.PersonTrack{}, fmt.Errorf("decode cameras of %s: %w", personID, err)
		}
	}

	raw, err := m.store.LRange(ctx, positionsKey(personID), 0, -1)
	if err != nil {
		return model.PersonTrack{}, fmt.Errorf("read positions of %s: %w", personID, err)
	}
	for _, r := range raw {
		var ps model.PositionSample
		if err := json.Unmarshal([]byte(r), &ps); err != nil {
			continue
		}
		track.Positions = append(track.Positions, ps)
	}
	return track, nil
}

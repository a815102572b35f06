package tracking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/sightline/internal/adapters/store"
	"github.com/okian/sightline/internal/adapters/store/storetest"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/tracking"
	"github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("p%03d", n)
	}
}

func newManager(t *testing.T, opts ...tracking.Option) (*tracking.Manager, *storetest.Faulty) {
	faulty := storetest.NewFaulty(storetest.NewMemory(t, storetest.NewClock(t0)))
	opts = append([]tracking.Option{tracking.WithIDGenerator(sequentialIDs())}, opts...)
	return tracking.New(faulty, opts...), faulty
}

// sight assigns and records one sighting the way the resolver does.
func sight(ctx context.Context, m *tracking.Manager, cam string, ts time.Time, x, y float64) string {
	pos := model.Position{X: x, Y: y}
	id := m.Assign(ctx, cam, ts, pos)
	m.Update(ctx, id, cam, ts, pos, "")
	return id
}

func TestAssignMatchBoundaries(t *testing.T) {
	convey.Convey("Given a track with one sample at the origin", t, func() {
		ctx := context.Background()
		m, _ := newManager(t)
		first := sight(ctx, m, "cam1", t0, 0, 0)

		convey.Convey("When a sighting is 30s later and 50 units away", func() {
			id := m.Assign(ctx, "cam2", t0.Add(30*time.Second), model.Position{X: 30, Y: 40})

			convey.Convey("Then it should resolve to the same person", func() {
				convey.So(id, convey.ShouldEqual, first)
			})
		})

		convey.Convey("When a sighting is 30s earlier", func() {
			id := m.Assign(ctx, "cam1", t0.Add(-30*time.Second), model.Position{X: 1, Y: 1})

			convey.Convey("Then the window should apply in both directions", func() {
				convey.So(id, convey.ShouldEqual, first)
			})
		})

		convey.Convey("When a sighting is 31s later", func() {
			id := m.Assign(ctx, "cam1", t0.Add(31*time.Second), model.Position{X: 0, Y: 0})

			convey.Convey("Then a new person id should be minted", func() {
				convey.So(id, convey.ShouldNotEqual, first)
			})
		})

		convey.Convey("When a sighting is 51 units away", func() {
			id := m.Assign(ctx, "cam1", t0.Add(time.Second), model.Position{X: 51, Y: 0})

			convey.Convey("Then a new person id should be minted", func() {
				convey.So(id, convey.ShouldNotEqual, first)
			})
		})
	})
}

func TestAssignNearestWins(t *testing.T) {
	convey.Convey("Given two tracks near a new sighting", t, func() {
		ctx := context.Background()
		m, _ := newManager(t)
		far := sight(ctx, m, "cam1", t0, 40, 0)
		near := sight(ctx, m, "cam1", t0, -200, 0)
		// move the second track next to the query point
		m.Update(ctx, near, "cam1", t0.Add(time.Second), model.Position{X: 10, Y: 0}, "")

		convey.Convey("When the sighting lies within radius of both", func() {
			id := m.Assign(ctx, "cam1", t0.Add(2*time.Second), model.Position{X: 0, Y: 0})

			convey.Convey("Then the closest track should win", func() {
				convey.So(far, convey.ShouldNotEqual, near)
				convey.So(id, convey.ShouldEqual, near)
			})
		})

		convey.Convey("When two tracks are equally distant", func() {
			older := sight(ctx, m, "cam3", t0, 500, 30)
			newer := sight(ctx, m, "cam3", t0.Add(5*time.Second), 500, -30)
			id := m.Assign(ctx, "cam3", t0.Add(6*time.Second), model.Position{X: 500, Y: 0})

			convey.Convey("Then the most recent sample should win", func() {
				convey.So(older, convey.ShouldNotEqual, newer)
				convey.So(id, convey.ShouldEqual, newer)
			})
		})
	})
}

func TestAssignUsesRecentSamplesOnly(t *testing.T) {
	convey.Convey("Given a track whose only nearby sample is older than the last ten", t, func() {
		ctx := context.Background()
		m, _ := newManager(t)
		id := sight(ctx, m, "cam1", t0, 0, 0)
		for i := 1; i <= 10; i++ {
			m.Update(ctx, id, "cam1", t0.Add(time.Duration(i)*time.Second), model.Position{X: 1000, Y: 1000}, "")
		}

		convey.Convey("When a sighting arrives at the old position", func() {
			got := m.Assign(ctx, "cam1", t0.Add(11*time.Second), model.Position{X: 0, Y: 0})

			convey.Convey("Then it should not match the track", func() {
				convey.So(got, convey.ShouldNotEqual, id)
			})
		})
	})
}

func TestUpdateTracking(t *testing.T) {
	convey.Convey("Given a person track", t, func() {
		ctx := context.Background()
		m, _ := newManager(t)
		id := sight(ctx, m, "cam1", t0, 0, 0)

		convey.Convey("When it is resolved twice with different identities", func() {
			m.Update(ctx, id, "cam1", t0.Add(time.Second), model.Position{}, "cust1")
			m.Update(ctx, id, "cam2", t0.Add(2*time.Second), model.Position{}, "cust2")
			m.Update(ctx, id, "cam2", t0.Add(3*time.Second), model.Position{}, "")
			track, err := m.Get(ctx, id)

			convey.Convey("Then the first resolution should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(track.ResolvedIdentityID, convey.ShouldNotBeNil)
				convey.So(*track.ResolvedIdentityID, convey.ShouldEqual, "cust1")
			})

			convey.Convey("Then metadata should reflect every sighting", func() {
				convey.So(track.FirstSeen.Equal(t0), convey.ShouldBeTrue)
				convey.So(track.LastSeen.Equal(t0.Add(3*time.Second)), convey.ShouldBeTrue)
				convey.So(track.Cameras, convey.ShouldResemble, []string{"cam1", "cam2"})
				convey.So(len(track.Positions), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When it receives many more than 100 updates", func() {
			for i := 1; i <= 150; i++ {
				m.Update(ctx, id, "cam1", t0.Add(time.Duration(i)*time.Second), model.Position{X: float64(i)}, "")
			}
			track, err := m.Get(ctx, id)

			convey.Convey("Then only the last 100 samples should be kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(track.Positions), convey.ShouldEqual, 100)
				convey.So(track.Positions[99].Position.X, convey.ShouldEqual, 150.0)
				convey.So(track.Positions[0].Position.X, convey.ShouldEqual, 51.0)
			})
		})

		convey.Convey("When an unresolved track is read", func() {
			track, err := m.Get(ctx, id)

			convey.Convey("Then the identity should be nil", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(track.ResolvedIdentityID, convey.ShouldBeNil)
			})
		})
	})
}

// slowReads stretches the gap between reading a track and writing it back and
// records the identity carried by each write in order.
type slowReads struct {
	store.Store

	mu      sync.Mutex
	written []string
}

func (s *slowReads) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	time.Sleep(20 * time.Millisecond)
	return s.Store.HGetAll(ctx, key)
}

func (s *slowReads) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	s.written = append(s.written, fields["customer_id"])
	s.mu.Unlock()
	return s.Store.HSet(ctx, key, fields)
}

func TestConcurrentUpdates(t *testing.T) {
	convey.Convey("Given a track updated from many goroutines at once", t, func() {
		ctx := context.Background()
		slow := &slowReads{Store: storetest.NewMemory(t, storetest.NewClock(t0))}
		m := tracking.New(slow)

		const n = 8
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m.Update(ctx, "shared", fmt.Sprintf("cam%d", i), t0.Add(time.Duration(i)*time.Second),
					model.Position{X: float64(i)}, fmt.Sprintf("cust%d", i))
			}(i)
		}
		wg.Wait()
		track, err := m.Get(ctx, "shared")

		convey.Convey("Then no camera or sample should be lost", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(track.Cameras, convey.ShouldHaveLength, n)
			for i := 0; i < n; i++ {
				convey.So(track.Cameras, convey.ShouldContain, fmt.Sprintf("cam%d", i))
			}
			convey.So(len(track.Positions), convey.ShouldEqual, n)
		})

		convey.Convey("Then the identity of the first write should stick", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(track.ResolvedIdentityID, convey.ShouldNotBeNil)
			convey.So(slow.written, convey.ShouldHaveLength, n)
			for _, id := range slow.written {
				convey.So(id, convey.ShouldEqual, slow.written[0])
			}
			convey.So(*track.ResolvedIdentityID, convey.ShouldEqual, slow.written[0])
		})
	})
}

func TestTrackExpiryAndLookup(t *testing.T) {
	convey.Convey("Given a manager with a short tracking timeout", t, func() {
		ctx := context.Background()
		clock := storetest.NewClock(t0)
		s := storetest.NewMemory(t, clock)
		m := tracking.New(s, tracking.WithIDGenerator(sequentialIDs()), tracking.WithTrackingTimeout(time.Minute))
		id := sight(ctx, m, "cam1", t0, 0, 0)

		convey.Convey("When the track is idle past the timeout", func() {
			clock.Advance(61 * time.Second)
			_, err := m.Get(ctx, id)

			convey.Convey("Then it should be gone", func() {
				convey.So(errors.Is(err, tracking.ErrTrackNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown person is requested", func() {
			_, err := m.Get(ctx, "nobody")

			convey.Convey("Then ErrTrackNotFound should be returned", func() {
				convey.So(errors.Is(err, tracking.ErrTrackNotFound), convey.ShouldBeTrue)
			})
		})
	})
}

func TestTrackingStoreFailures(t *testing.T) {
	convey.Convey("Given a manager over a failing store", t, func() {
		ctx := context.Background()
		m, faulty := newManager(t)
		first := sight(ctx, m, "cam1", t0, 0, 0)

		convey.Convey("When scanning tracks fails", func() {
			faulty.Fail("Keys")
			id := m.Assign(ctx, "cam1", t0, model.Position{})

			convey.Convey("Then a fresh id should be minted", func() {
				convey.So(id, convey.ShouldNotEqual, first)
				convey.So(id, convey.ShouldNotBeEmpty)
			})
		})

		convey.Convey("When writes fail", func() {
			faulty.Fail("HSet", "RPush")

			convey.Convey("Then the update should be swallowed", func() {
				convey.So(func() {
					m.Update(ctx, first, "cam1", t0, model.Position{}, "cust1")
				}, convey.ShouldNotPanic)
				faulty.Heal()
				track, err := m.Get(ctx, first)
				convey.So(err, convey.ShouldBeNil)
				convey.So(track.ResolvedIdentityID, convey.ShouldBeNil)
			})
		})
	})
}

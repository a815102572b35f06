package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/model"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

type stubSearcher struct{ results []model.Candidate }

func (s stubSearcher) Search(context.Context, []float32, int) ([]model.Candidate, error) {
	return s.results, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []model.IdentifiedCustomerEvent
}

func (p *capturePublisher) Publish(_ context.Context, e model.IdentifiedCustomerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Events() []model.IdentifiedCustomerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.IdentifiedCustomerEvent(nil), p.events...)
}

type captureSubscriber struct {
	id      string
	mu      sync.Mutex
	updates []model.TrackingUpdate
}

func (c *captureSubscriber) ID() string { return c.id }

func (c *captureSubscriber) Send(_ context.Context, env model.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, env.Data)
	return nil
}

func (c *captureSubscriber) Updates() []model.TrackingUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.TrackingUpdate(nil), c.updates...)
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.KafkaEnabled = false
	cfg.StoreBackend = config.StoreMemory
	cfg.EmbeddingDim = 4
	cfg.PublishInitialBackoffMS = 1
	return cfg
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service backed by the memory store", t, func() {
		ctx := context.Background()
		svc := New(testConfig(), WithEmbedder(stubEmbedder{}), WithSearcher(stubSearcher{}))

		Convey("Enqueue is refused before Start", func() {
			So(svc.Enqueue(ctx, model.SightingEvent{CameraID: "cam1"}), ShouldBeFalse)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})

		Convey("Queries are refused before Start", func() {
			_, err := svc.Track(ctx, "p1")
			So(errors.Is(err, ErrNotStarted), ShouldBeTrue)
			_, err = svc.SessionConfidence(ctx, "cam1_1")
			So(errors.Is(err, ErrNotStarted), ShouldBeTrue)
			So(func() { svc.ApplyTrackingUpdate(ctx, model.TrackingUpdate{CameraID: "cam1"}) }, ShouldNotPanic)
		})

		Convey("Enqueue does not count sightings itself", func() {
			So(svc.Start(ctx), ShouldBeNil)
			received := sightingsReceived("http")
			So(svc.Enqueue(ctx, model.SightingEvent{CameraID: "cam1", FaceCrop: "crop"}), ShouldBeTrue)
			So(sightingsReceived("http"), ShouldEqual, received)
			So(svc.Stop(ctx), ShouldBeNil)
		})

		Convey("Start and Stop are idempotent", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["store_backend"], ShouldEqual, config.StoreMemory)
			So(stats["queue_length"], ShouldEqual, 0)

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldBeFalse)
			So(svc.Enqueue(ctx, model.SightingEvent{CameraID: "cam1"}), ShouldBeFalse)

			_, err := svc.Track(ctx, "p1")
			So(errors.Is(err, ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestServiceStartupFailures(t *testing.T) {
	Convey("Given an unreachable redis", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig()
		cfg.StoreBackend = config.StoreRedis
		cfg.RedisAddr = addr

		err := New(cfg).Start(context.Background())
		So(errors.Is(err, ErrStartup), ShouldBeTrue)
	})

	Convey("Given an hnsw backend with a missing gallery", t, func() {
		cfg := testConfig()
		cfg.SimilarityBackend = config.SimilarityHNSW
		cfg.SimilarityGalleryPath = t.TempDir() + "/missing.json"

		err := New(cfg, WithEmbedder(stubEmbedder{})).Start(context.Background())
		So(errors.Is(err, ErrStartup), ShouldBeTrue)
	})
}

func TestServiceRedisBackend(t *testing.T) {
	Convey("Given a service backed by redis", t, func() {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.StoreBackend = config.StoreRedis
		cfg.RedisAddr = mr.Addr()

		ctx := context.Background()
		pub := &capturePublisher{}
		svc := New(cfg,
			WithEmbedder(stubEmbedder{}),
			WithSearcher(stubSearcher{results: []model.Candidate{{IdentityID: "cust1", Distance: 0.02}}}),
			WithPublisher(pub),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("A matching sighting is identified and its track persisted in redis", func() {
			sub := &captureSubscriber{id: "sub"}
			svc.Hub().Subscribe(sub)

			ok := svc.Enqueue(ctx, model.SightingEvent{
				CameraID:  "cam1",
				Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
				FaceCrop:  "crop",
				Position:  model.Position{X: 10, Y: 20},
			})
			So(ok, ShouldBeTrue)
			So(eventually(func() bool { return len(sub.Updates()) == 1 }), ShouldBeTrue)
			So(eventually(func() bool { return len(pub.Events()) == 1 }), ShouldBeTrue)

			events := pub.Events()
			So(events, ShouldHaveLength, 1)
			So(events[0].CustomerID, ShouldEqual, "cust1")
			So(events[0].Confidence, ShouldAlmostEqual, 98.0, 1e-9)

			obj := sub.Updates()[0].Objects[0]
			track, err := svc.Track(ctx, obj.PersonID)
			So(err, ShouldBeNil)
			So(*track.ResolvedIdentityID, ShouldEqual, "cust1")

			So(mr.Keys(), ShouldContain, "person:"+obj.PersonID)
		})
	})
}

func TestApplyTrackingUpdate(t *testing.T) {
	Convey("Given a running service with a subscriber", t, func() {
		ctx := context.Background()
		svc := New(testConfig(), WithEmbedder(stubEmbedder{}), WithSearcher(stubSearcher{}))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub := &captureSubscriber{id: "sub"}
		svc.Hub().Subscribe(sub)

		Convey("The update is applied to tracks and broadcast", func() {
			cust := "cust9"
			ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
			svc.ApplyTrackingUpdate(ctx, model.TrackingUpdate{
				CameraID:  "cam2",
				Timestamp: ts,
				Objects: []model.TrackedObject{
					{PersonID: "p1", CameraID: "cam2", Timestamp: ts, Position: model.Position{X: 1, Y: 2}, CustomerID: &cust},
					{PersonID: "p2", CameraID: "cam2", Timestamp: ts, Position: model.Position{X: 300, Y: 300}},
				},
			})

			So(eventually(func() bool { return len(sub.Updates()) == 1 }), ShouldBeTrue)
			So(sub.Updates()[0].Objects, ShouldHaveLength, 2)

			p1, err := svc.Track(ctx, "p1")
			So(err, ShouldBeNil)
			So(*p1.ResolvedIdentityID, ShouldEqual, "cust9")
			So(p1.Cameras, ShouldResemble, []string{"cam2"})

			p2, err := svc.Track(ctx, "p2")
			So(err, ShouldBeNil)
			So(p2.ResolvedIdentityID, ShouldBeNil)
			So(svc.GetStats()["subscribers"], ShouldEqual, 1)
		})

		Convey("Concurrent updates for one person keep the first identity and every camera", func() {
			ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
			var wg sync.WaitGroup
			for _, cust := range []string{"cust1", "cust2"} {
				wg.Add(1)
				go func(cust string) {
					defer wg.Done()
					svc.ApplyTrackingUpdate(ctx, model.TrackingUpdate{
						CameraID:  "cam-" + cust,
						Timestamp: ts,
						Objects: []model.TrackedObject{
							{PersonID: "p3", CameraID: "cam-" + cust, Timestamp: ts, CustomerID: &cust},
						},
					})
				}(cust)
			}
			wg.Wait()

			p3, err := svc.Track(ctx, "p3")
			So(err, ShouldBeNil)
			So(p3.ResolvedIdentityID, ShouldNotBeNil)
			So(*p3.ResolvedIdentityID, ShouldBeIn, []string{"cust1", "cust2"})
			So(p3.Cameras, ShouldHaveLength, 2)
			So(p3.Positions, ShouldHaveLength, 2)
		})
	})
}

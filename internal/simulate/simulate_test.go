package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/domain/model"
)

func baseConfig() *Config {
	return &Config{
		Transport:         TransportHTTP,
		BaseURL:           "http://localhost:8000",
		Customers:         5,
		Cameras:           3,
		Visits:            10,
		SightingsPerVisit: 4,
		FrameInterval:     time.Second,
		Start:             time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:              42,
		Workers:           4,
		Timeout:           time.Second,
	}
}

type recordingSink struct {
	mu       sync.Mutex
	byCamera map[string][]time.Time
	failOn   string
}

func (s *recordingSink) Send(_ context.Context, e model.SightingEvent) error {
	if s.failOn != "" && e.CameraID == s.failOn {
		return ErrRejected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCamera[e.CameraID] = append(s.byCamera[e.CameraID], e.Timestamp)
	return nil
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded configuration", t, func() {
		cfg := baseConfig()
		events := Generate(cfg)

		Convey("It produces every frame of every visit", func() {
			So(events, ShouldHaveLength, 40)
		})

		Convey("Frames of one visit share a camera and move a few pixels", func() {
			for v := 0; v < cfg.Visits; v++ {
				visit := events[v*4 : v*4+4]
				customer := strings.SplitN(visit[0].FaceCrop, ":", 2)[0]
				for i := 1; i < len(visit); i++ {
					So(visit[i].CameraID, ShouldEqual, visit[0].CameraID)
					So(visit[i].Timestamp.Sub(visit[i-1].Timestamp), ShouldEqual, time.Second)
					So(visit[i].Position.X, ShouldAlmostEqual, visit[i-1].Position.X, maxStep)
					So(visit[i].Position.Y, ShouldAlmostEqual, visit[i-1].Position.Y, maxStep)
					So(strings.HasPrefix(visit[i].FaceCrop, customer+":"), ShouldBeTrue)
				}
			}
		})

		Convey("Every sighting is valid at the ingestion boundary", func() {
			for _, e := range events {
				So(e.Validate(), ShouldBeNil)
			}
		})

		Convey("The same seed yields the same cameras and positions", func() {
			again := Generate(cfg)
			for i := range events {
				So(again[i].CameraID, ShouldEqual, events[i].CameraID)
				So(again[i].Position, ShouldResemble, events[i].Position)
			}
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Invalid configurations are rejected", t, func() {
		cfg := baseConfig()
		cfg.Transport = "carrier-pigeon"
		So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)

		cfg = baseConfig()
		cfg.Transport = TransportKafka
		So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)

		cfg = baseConfig()
		cfg.Workers = 0
		So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestRun(t *testing.T) {
	Convey("Given a recording sink", t, func() {
		cfg := baseConfig()
		sink := &recordingSink{byCamera: map[string][]time.Time{}}

		stats, err := Run(context.Background(), cfg, sink, io.Discard)
		So(err, ShouldBeNil)
		So(stats.Generated, ShouldEqual, 40)
		So(stats.Submitted, ShouldEqual, 40)
		So(stats.Failed, ShouldEqual, 0)

		Convey("Each camera's frames arrive in timestamp order", func() {
			for _, times := range sink.byCamera {
				for i := 1; i < len(times); i++ {
					So(times[i].After(times[i-1]), ShouldBeTrue)
				}
			}
		})
	})

	Convey("Failed submissions are counted", t, func() {
		cfg := baseConfig()
		cfg.Cameras = 1
		sink := &recordingSink{byCamera: map[string][]time.Time{}, failOn: "cam1"}

		stats, err := Run(context.Background(), cfg, sink, io.Discard)
		So(err, ShouldBeNil)
		So(stats.Failed, ShouldEqual, 40)
		So(stats.Submitted, ShouldEqual, 0)
	})
}

func TestHTTPSink(t *testing.T) {
	Convey("Given a sightings endpoint", t, func() {
		var got []model.SightingEvent
		var mu sync.Mutex
		status := http.StatusAccepted
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/sightings" {
				http.NotFound(w, r)
				return
			}
			var e model.SightingEvent
			if err := json.NewDecoder(r.Body).Decode(&e); err == nil {
				mu.Lock()
				got = append(got, e)
				mu.Unlock()
			}
			w.WriteHeader(status)
		}))
		defer srv.Close()

		sink := NewHTTPSink(srv.URL, time.Second)
		event := Generate(baseConfig())[0]

		Convey("Accepted sightings succeed", func() {
			So(sink.Send(context.Background(), event), ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].CameraID, ShouldEqual, event.CameraID)
			So(got[0].FaceCrop, ShouldEqual, event.FaceCrop)
		})

		Convey("Backpressure is reported as a rejection", func() {
			status = http.StatusTooManyRequests
			So(errors.Is(sink.Send(context.Background(), event), ErrRejected), ShouldBeTrue)
		})
	})
}

type keyedProducer struct {
	keys []string
}

func (p *keyedProducer) Send(_ context.Context, key string, _ any) error {
	p.keys = append(p.keys, key)
	return nil
}

func TestKafkaSink(t *testing.T) {
	Convey("Sightings are keyed by camera", t, func() {
		p := &keyedProducer{}
		sink := NewKafkaSink(p)
		So(sink.Send(context.Background(), model.SightingEvent{CameraID: "cam3"}), ShouldBeNil)
		So(p.keys, ShouldResemble, []string{"cam3"})
	})
}

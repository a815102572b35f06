package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/adapters/http/api"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/confidence"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/metrics"
)

var testEmbedding = []float32{0.5, 0.5, 0.5, 0.5}

func collaborators(t *testing.T, distance float64) (embeddingURL, similarityURL string) {
	t.Helper()
	emb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-embedding" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": testEmbedding})
	}))
	t.Cleanup(emb.Close)

	sim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"identity_id": "cust1", "distance": distance}},
		})
	}))
	t.Cleanup(sim.Close)
	return emb.URL, sim.URL
}

func postSighting(t *testing.T, h http.Handler, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sightings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

// sightingsReceived reads the received counter for source off the registry.
func sightingsReceived(source string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != "sightline_identity_sightings_received_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "source" && l.GetValue() == source {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPipelineEndToEnd(t *testing.T) {
	Convey("Given a service with HTTP collaborators and the HTTP surface", t, func() {
		ctx := context.Background()
		embURL, simURL := collaborators(t, 0.04)

		cfg := testConfig()
		cfg.EmbeddingURL = embURL
		cfg.SimilarityURL = simURL

		pub := &capturePublisher{}
		svc := New(cfg, WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)

		r := chi.NewRouter()
		api.NewServer(svc, svc).Register(r)

		sub := &captureSubscriber{id: "dashboard"}
		svc.Hub().Subscribe(sub)

		Convey("Three sightings of cust1 at distance 0.04 emit exactly one event", func() {
			received := sightingsReceived("http")
			for _, ts := range []string{"2023-01-01T00:00:00Z", "2023-01-01T00:00:01Z", "2023-01-01T00:00:02Z"} {
				body := `{"camera_id":"cam1","timestamp":"` + ts + `","face_crop":"crop","position":{"x":100,"y":100}}`
				So(postSighting(t, r, body), ShouldEqual, http.StatusAccepted)
			}
			So(sightingsReceived("http")-received, ShouldEqual, 3.0)
			So(eventually(func() bool { return len(sub.Updates()) == 3 }), ShouldBeTrue)

			updates := sub.Updates()
			personID := updates[0].Objects[0].PersonID
			for _, u := range updates {
				So(u.Objects[0].PersonID, ShouldEqual, personID)
				So(*u.Objects[0].CustomerID, ShouldEqual, "cust1")
			}

			req := httptest.NewRequest(http.MethodGet, "/persons/"+personID, http.NoBody)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)

			var track model.PersonTrack
			So(json.Unmarshal(w.Body.Bytes(), &track), ShouldBeNil)
			So(*track.ResolvedIdentityID, ShouldEqual, "cust1")
			So(track.Positions, ShouldHaveLength, 3)

			_, err := svc.SessionConfidence(ctx, "cam1_27875520")
			So(errors.Is(err, confidence.ErrSessionNotFound), ShouldBeTrue)

			So(svc.Stop(ctx), ShouldBeNil)

			events := pub.Events()
			So(events, ShouldHaveLength, 1)
			So(events[0].CustomerID, ShouldEqual, "cust1")
			So(events[0].CameraID, ShouldEqual, "cam1")
			So(events[0].Confidence, ShouldAlmostEqual, 96.0, 1e-9)
		})

		Reset(func() { _ = svc.Stop(ctx) })
	})
}

func TestPipelineBelowThreshold(t *testing.T) {
	Convey("Given a similarity service that only returns weak matches", t, func() {
		ctx := context.Background()
		embURL, simURL := collaborators(t, 0.2)

		cfg := testConfig()
		cfg.EmbeddingURL = embURL
		cfg.SimilarityURL = simURL

		pub := &capturePublisher{}
		svc := New(cfg, WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub := &captureSubscriber{id: "dashboard"}
		svc.Hub().Subscribe(sub)

		Convey("The session accumulates confidence without identifying anyone", func() {
			So(svc.Enqueue(ctx, model.SightingEvent{
				CameraID:  "cam1",
				Timestamp: mustParse("2023-01-01T00:00:00Z"),
				FaceCrop:  "crop",
			}), ShouldBeTrue)
			So(eventually(func() bool { return len(sub.Updates()) == 1 }), ShouldBeTrue)

			sc, err := svc.SessionConfidence(ctx, "cam1_27875520")
			So(err, ShouldBeNil)
			So(sc.Candidates, ShouldHaveLength, 1)
			So(sc.Candidates[0].IdentityID, ShouldEqual, "cust1")
			So(sc.Candidates[0].Score, ShouldAlmostEqual, 80.0, 1e-9)
			So(sub.Updates()[0].Objects[0].CustomerID, ShouldBeNil)
			So(pub.Events(), ShouldBeEmpty)
		})
	})
}

func TestPipelineWithGallery(t *testing.T) {
	Convey("Given the in-process gallery as similarity backend", t, func() {
		ctx := context.Background()
		embURL, _ := collaborators(t, 0)

		gallery := []map[string]any{
			{"identity_id": "cust1", "embedding": testEmbedding},
			{"identity_id": "cust2", "embedding": []float32{-0.5, -0.5, -0.5, -0.5}},
		}
		raw, err := json.Marshal(gallery)
		So(err, ShouldBeNil)
		path := filepath.Join(t.TempDir(), "gallery.json")
		So(os.WriteFile(path, raw, 0o600), ShouldBeNil)

		cfg := testConfig()
		cfg.EmbeddingURL = embURL
		cfg.SimilarityBackend = config.SimilarityHNSW
		cfg.SimilarityGalleryPath = path

		pub := &capturePublisher{}
		svc := New(cfg, WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("An exact gallery match identifies the customer", func() {
			So(svc.Enqueue(ctx, model.SightingEvent{
				CameraID:  "cam7",
				Timestamp: mustParse("2023-01-01T00:00:00Z"),
				FaceCrop:  "crop",
			}), ShouldBeTrue)
			So(svc.Stop(ctx), ShouldBeNil)

			events := pub.Events()
			So(events, ShouldHaveLength, 1)
			So(events[0].CustomerID, ShouldEqual, "cust1")
			So(events[0].Confidence, ShouldAlmostEqual, 100.0, 1e-9)
		})

		Reset(func() { _ = svc.Stop(ctx) })
	})
}

func mustParse(s string) time.Time {
	ts, err := model.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return ts
}

package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/sightline/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDecodeSighting(t *testing.T) {
	convey.Convey("Given sighting payloads", t, func() {
		convey.Convey("When the payload is complete", func() {
			ev, err := model.DecodeSighting([]byte(`{"camera_id":"cam1","timestamp":"2023-01-01T00:00:00Z","face_crop":"abc","position":{"x":1.5,"y":2}}`))

			convey.Convey("Then every field should be populated", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.CameraID, convey.ShouldEqual, "cam1")
				convey.So(ev.Timestamp.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
				convey.So(ev.FaceCrop, convey.ShouldEqual, "abc")
				convey.So(ev.Position, convey.ShouldResemble, model.Position{X: 1.5, Y: 2})
			})
		})

		convey.Convey("When position is missing and the legacy crop field is used", func() {
			ev, err := model.DecodeSighting([]byte(`{"camera_id":"cam1","timestamp":"2023-01-01T00:00:00","face_crop_b64":"abc"}`))

			convey.Convey("Then the origin and the alias should be used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.FaceCrop, convey.ShouldEqual, "abc")
				convey.So(ev.Position, convey.ShouldResemble, model.Position{})
				convey.So(ev.Timestamp.Location(), convey.ShouldEqual, time.UTC)
			})
		})

		convey.Convey("When required fields are missing or invalid", func() {
			cases := []string{
				`{"timestamp":"2023-01-01T00:00:00Z","face_crop":"abc"}`,
				`{"camera_id":"  ","timestamp":"2023-01-01T00:00:00Z","face_crop":"abc"}`,
				`{"camera_id":"cam1","face_crop":"abc"}`,
				`{"camera_id":"cam1","timestamp":"yesterday","face_crop":"abc"}`,
				`{"camera_id":"cam1","timestamp":"2023-01-01T00:00:00Z"}`,
				`{"camera_id":"cam1","timestamp":"2023-01-01T00:00:00Z","face_crop":"abc","position":"left"}`,
				`not json`,
			}

			convey.Convey("Then each should be rejected as malformed", func() {
				for _, c := range cases {
					_, err := model.DecodeSighting([]byte(c))
					convey.So(errors.Is(err, model.ErrMalformedEvent), convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When an event is marshalled", func() {
			ev := model.SightingEvent{
				CameraID:  "cam2",
				Timestamp: time.Date(2023, 1, 1, 0, 0, 30, 0, time.UTC),
				FaceCrop:  "xyz",
				Position:  model.Position{X: 3, Y: 4},
			}
			data, err := json.Marshal(ev)

			convey.Convey("Then the canonical wire form should be produced", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldEqual,
					`{"camera_id":"cam2","timestamp":"2023-01-01T00:00:30Z","face_crop":"xyz","position":{"x":3,"y":4}}`)
			})
		})
	})
}

func TestSessionID(t *testing.T) {
	convey.Convey("Given a 60s session window", t, func() {
		base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

		convey.Convey("Then sightings in the same minute share a session", func() {
			a := model.SessionID("cam1", base, time.Minute)
			b := model.SessionID("cam1", base.Add(59*time.Second), time.Minute)
			convey.So(a, convey.ShouldEqual, b)
			convey.So(a, convey.ShouldEqual, "cam1_27875520")
		})

		convey.Convey("Then the next minute opens a new session", func() {
			convey.So(model.SessionID("cam1", base.Add(time.Minute), time.Minute),
				convey.ShouldNotEqual, model.SessionID("cam1", base, time.Minute))
		})

		convey.Convey("Then cameras never share a session", func() {
			convey.So(model.SessionID("cam2", base, time.Minute),
				convey.ShouldNotEqual, model.SessionID("cam1", base, time.Minute))
		})

		convey.Convey("Then pre-epoch timestamps floor toward negative infinity", func() {
			convey.So(model.SessionID("cam1", time.Unix(-1, 0), time.Minute), convey.ShouldEqual, "cam1_-1")
		})

		convey.Convey("Then key separators in camera ids are encoded", func() {
			sid := model.SessionID("dock:2", base, time.Minute)
			convey.So(sid, convey.ShouldEqual, "dock%3A2_27875520")
			convey.So(sid, convey.ShouldNotContainSubstring, ":")
			convey.So(model.SessionID("dock%3A2", base, time.Minute), convey.ShouldNotEqual, sid)
		})
	})
}

func TestIdentifiedCustomerEventWire(t *testing.T) {
	convey.Convey("Given an identified customer event", t, func() {
		ev := model.IdentifiedCustomerEvent{
			CustomerID: "cust1",
			Confidence: 96,
			CameraID:   "cam1",
			Timestamp:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		convey.Convey("When marshalled", func() {
			data, err := json.Marshal(ev)

			convey.Convey("Then it should use the outbound field names", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldEqual,
					`{"customer_id":"cust1","confidence":96,"camera_id":"cam1","timestamp":"2023-01-01T00:00:00Z"}`)

				var back model.IdentifiedCustomerEvent
				convey.So(json.Unmarshal(data, &back), convey.ShouldBeNil)
				convey.So(back.Timestamp.Equal(ev.Timestamp), convey.ShouldBeTrue)
			})
		})
	})
}

func TestTrackingUpdate(t *testing.T) {
	convey.Convey("Given a tracking update", t, func() {
		ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		u := model.TrackingUpdate{
			CameraID:  "cam1",
			Timestamp: ts,
			Objects:   []model.TrackedObject{{PersonID: "p1", CameraID: "cam1", Timestamp: ts}},
		}

		convey.Convey("When wrapped in an envelope", func() {
			data, err := json.Marshal(model.NewEnvelope(u, ts))

			convey.Convey("Then an unresolved identity should be null", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldContainSubstring, `"type":"tracking_update"`)
				convey.So(string(data), convey.ShouldContainSubstring, `"customer_id":null`)
			})
		})

		convey.Convey("When an object lacks a person id", func() {
			u.Objects[0].PersonID = ""
			convey.So(errors.Is(u.Validate(), model.ErrMalformedUpdate), convey.ShouldBeTrue)
		})
	})
}

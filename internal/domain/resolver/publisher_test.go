package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/resolver"
	"github.com/okian/sightline/pkg/logger"
)

func TestRetryingPublisher(t *testing.T) {
	Convey("Given a retrying publisher", t, func() {
		ctx := context.Background()
		event := model.IdentifiedCustomerEvent{CustomerID: "cust1", Confidence: 96, CameraID: "cam1", Timestamp: t0}

		Convey("A transient failure is retried", func() {
			broker := &fakePublisher{failures: 1}
			p := resolver.NewRetryingPublisher(broker, resolver.WithInitialBackoff(time.Millisecond))
			So(p.Publish(ctx, event), ShouldBeNil)
			So(broker.calls, ShouldEqual, 2)
			So(broker.events, ShouldHaveLength, 1)
		})

		Convey("Waits double between attempts", func() {
			broker := &fakePublisher{failures: -1}
			p := resolver.NewRetryingPublisher(broker,
				resolver.WithMaxAttempts(3),
				resolver.WithInitialBackoff(20*time.Millisecond),
			)
			start := time.Now()
			err := p.Publish(ctx, event)
			So(errors.Is(err, resolver.ErrPublishExhausted), ShouldBeTrue)
			So(broker.calls, ShouldEqual, 3)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 60*time.Millisecond)
		})

		Convey("A single attempt does not sleep", func() {
			broker := &fakePublisher{failures: -1}
			p := resolver.NewRetryingPublisher(broker,
				resolver.WithMaxAttempts(1),
				resolver.WithInitialBackoff(time.Hour),
			)
			So(errors.Is(p.Publish(ctx, event), resolver.ErrPublishExhausted), ShouldBeTrue)
			So(broker.calls, ShouldEqual, 1)
		})
	})
}

func TestLogPublisher(t *testing.T) {
	Convey("The log publisher always succeeds", t, func() {
		p := resolver.NewLogPublisher(logger.Nop())
		So(p.Publish(context.Background(), model.IdentifiedCustomerEvent{CustomerID: "cust1"}), ShouldBeNil)
	})
}

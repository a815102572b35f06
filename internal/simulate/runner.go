package simulate

import (
	"context"
	"hash/fnv"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

// Run generates the configured stream and submits it through sink. Frames of
// one camera always go through the same worker so they arrive in order.
// Progress is drawn on progress; pass io.Discard to silence it.
func Run(ctx context.Context, cfg *Config, sink Sink, progress io.Writer) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	log := logger.NamedOrNop("simulate")

	events := Generate(cfg)
	stats := Stats{Generated: len(events)}
	log.Info(ctx, "generated sightings",
		logger.Int("count", len(events)),
		logger.Int("customers", cfg.Customers),
		logger.Int("cameras", cfg.Cameras),
	)

	bar := progressbar.NewOptions(len(events),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Submitting sightings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sightings"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	shards := make([]chan model.SightingEvent, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan model.SightingEvent, cfg.Workers*2)
	}

	var submitted, failed atomic.Int64
	var wg sync.WaitGroup
	started := time.Now()
	for i := range shards {
		wg.Add(1)
		go func(in <-chan model.SightingEvent) {
			defer wg.Done()
			for event := range in {
				if err := sink.Send(ctx, event); err != nil {
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "submit failed",
							logger.String("camera_id", event.CameraID),
							logger.Error(err),
						)
					}
				} else {
					submitted.Add(1)
				}
				_ = bar.Add(1)
			}
		}(shards[i])
	}

dispatch:
	for _, event := range events {
		select {
		case <-ctx.Done():
			break dispatch
		case shards[shard(event.CameraID, len(shards))] <- event:
		}
	}
	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()
	_ = bar.Finish()

	stats.Submitted = int(submitted.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(started)
	log.Info(ctx, "simulation finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
	return stats, ctx.Err()
}

func shard(cameraID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cameraID))
	return int(h.Sum32() % uint32(n))
}

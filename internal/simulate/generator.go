package simulate

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sightline/internal/domain/model"
)

// Frame geometry and per-frame movement.
const (
	frameWidth  = 1920.0
	frameHeight = 1080.0
	maxStep     = 15.0
	visitGap    = 5 * time.Second
)

// Generate builds cfg.Visits walk-bys of cfg.SightingsPerVisit frames each.
// A visit stays on one camera and moves the face a few pixels per frame, so
// consecutive frames land in the same person track. Face crops carry the
// customer id so a stub embedding service can derive stable vectors.
func Generate(cfg *Config) []model.SightingEvent {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	customers := make([]string, cfg.Customers)
	for i := range customers {
		customers[i] = "cust" + strconv.Itoa(i+1)
	}

	start := cfg.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = time.Second
	}

	events := make([]model.SightingEvent, 0, cfg.Visits*cfg.SightingsPerVisit)
	ts := start
	for v := 0; v < cfg.Visits; v++ {
		customer := customers[rng.IntN(len(customers))]
		camera := "cam" + strconv.Itoa(rng.IntN(cfg.Cameras)+1)
		pos := model.Position{X: rng.Float64() * frameWidth, Y: rng.Float64() * frameHeight}

		for f := 0; f < cfg.SightingsPerVisit; f++ {
			events = append(events, model.SightingEvent{
				CameraID:  camera,
				Timestamp: ts,
				FaceCrop:  customer + ":" + uuid.NewString(),
				Position:  pos,
			})
			pos = step(rng, pos)
			ts = ts.Add(interval)
		}
		ts = ts.Add(visitGap)
	}
	return events
}

func step(rng *rand.Rand, p model.Position) model.Position {
	p.X = clamp(p.X+(rng.Float64()*2-1)*maxStep, 0, frameWidth)
	p.Y = clamp(p.Y+(rng.Float64()*2-1)*maxStep, 0, frameHeight)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

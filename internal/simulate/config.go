// Package simulate generates synthetic sighting streams and submits them to
// the identity tracker over HTTP or Kafka.
package simulate

import (
	"fmt"
	"time"
)

// Transports a run can submit through.
const (
	TransportHTTP  = "http"
	TransportKafka = "kafka"
)

// Config holds the parameters of one simulation run.
type Config struct {
	Transport string
	BaseURL   string
	Brokers   string
	Topic     string

	// Customers is the size of the simulated population.
	Customers int
	// Cameras is the number of distinct camera ids sightings spread over.
	Cameras int
	// Visits is the number of walk-bys to generate.
	Visits int
	// SightingsPerVisit is the number of frames one walk-by produces.
	SightingsPerVisit int
	// FrameInterval separates consecutive frames of one visit.
	FrameInterval time.Duration
	// Start is the timestamp of the first visit.
	Start time.Time
	// Seed makes a run reproducible.
	Seed uint64

	Workers int
	Timeout time.Duration
	Verbose bool
}

// Validate reports the first unusable parameter.
func (c *Config) Validate() error {
	switch {
	case c.Transport != TransportHTTP && c.Transport != TransportKafka:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	case c.Transport == TransportHTTP && c.BaseURL == "":
		return fmt.Errorf("%w: url required for http transport", ErrInvalidConfig)
	case c.Transport == TransportKafka && (c.Brokers == "" || c.Topic == ""):
		return fmt.Errorf("%w: brokers and topic required for kafka transport", ErrInvalidConfig)
	case c.Customers <= 0 || c.Cameras <= 0:
		return fmt.Errorf("%w: customers and cameras must be positive", ErrInvalidConfig)
	case c.Visits <= 0 || c.SightingsPerVisit <= 0:
		return fmt.Errorf("%w: visits and sightings per visit must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Generated int
	Submitted int
	Failed    int
	Duration  time.Duration
}

package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/sightline/internal/domain/model"
)

// Sink submits one sighting.
type Sink interface {
	Send(ctx context.Context, event model.SightingEvent) error
}

// HTTPSink posts sightings to the service's /sightings endpoint.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink targets baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{url: baseURL + "/sightings", client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSink) Send(ctx context.Context, event model.SightingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode sighting: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sighting: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// Producer is the part of the Kafka producer a KafkaSink needs.
type Producer interface {
	Send(ctx context.Context, key string, v any) error
}

// KafkaSink publishes sightings keyed by camera id so each camera's frames
// stay ordered within a partition.
type KafkaSink struct {
	producer Producer
}

// NewKafkaSink wraps p.
func NewKafkaSink(p Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Send(ctx context.Context, event model.SightingEvent) error {
	return s.producer.Send(ctx, event.CameraID, event)
}

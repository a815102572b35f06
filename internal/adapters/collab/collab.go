// Package collab holds the JSON-over-HTTP plumbing shared by the external
// collaborator clients.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/sightline/pkg/metrics"
)

// maxErrorBody caps how much of a failed response ends up in an error.
const maxErrorBody = 512

// Sentinel kinds for collaborator errors.
var (
	ErrRequest  = errors.New("collaborator request failed")
	ErrStatus   = errors.New("collaborator returned an error status")
	ErrResponse = errors.New("collaborator response invalid")
)

// PostJSON posts in as JSON to url and decodes a 200 response into out.
// The call is timed under name in the collaborator latency histogram.
func PostJSON(ctx context.Context, client *http.Client, name, url string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordCollaboratorLatency(name, outcome, time.Since(start))
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrResponse, err)
	}
	return nil
}

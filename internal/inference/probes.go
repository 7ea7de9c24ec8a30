package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Defaults returned by the capability probes when the inference module does not
// answer in time or answers garbage.
const (
	DefaultRecommendedFPS = 10.0
	DefaultDevice         = "cpu"

	recommendedFPSTimeout = 3 * time.Second
	deviceTimeout         = 1 * time.Second
)

type Metrics struct {
	SuccessRate          float64 `json:"success_rate"`
	InferenceNum         int     `json:"inference_num"`
	UnidentifiedNum      int     `json:"unidentified_num"`
	IsGPU                bool    `json:"is_gpu"`
	AverageInferenceTime float64 `json:"average_inference_time"`
}

// UnreachableError is returned when the inference module cannot be contacted.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("inference module url: %s unreachable: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// Metrics fetches the live inference statistics.
func (n *Notifier) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := n.getJSON(ctx, "/metrics", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecommendedFPS asks the module for its recommended total fps. It returns
// DefaultRecommendedFPS on any failure or after 3 seconds.
func (n *Notifier) RecommendedFPS(ctx context.Context) float64 {
	ctx, cancel := context.WithTimeout(ctx, recommendedFPSTimeout)
	defer cancel()

	var body struct {
		FPS *float64 `json:"fps"`
	}
	if err := n.getJSON(ctx, "/get_recommended_total_fps", &body); err != nil || body.FPS == nil {
		n.log.Debugw("fallback to default recommended fps", "error", err)
		return DefaultRecommendedFPS
	}
	return *body.FPS
}

// Device returns the device the module runs on. It returns DefaultDevice on any
// failure or after 1 second.
func (n *Notifier) Device(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, deviceTimeout)
	defer cancel()

	var body struct {
		Device string `json:"device"`
	}
	if err := n.getJSON(ctx, "/get_device", &body); err != nil || body.Device == "" {
		return DefaultDevice
	}
	return body.Device
}

// IsVPU is false unless the module reports a vpu device.
func (n *Notifier) IsVPU(ctx context.Context) bool {
	return n.Device(ctx) == "vpu"
}

func (n *Notifier) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return &UnreachableError{URL: n.baseURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference module %s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// Prediction is a single tag with its probability (0..1).
type Prediction struct {
	Tag         string  `json:"tagName"`
	Probability float64 `json:"probability"`
}

// Classifier labels an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) ([]Prediction, error)
}

// Tally counts predictions per tag whose probability is strictly above
// threshold. Detection models return one prediction per object, so the
// count is the number of objects of that tag.
func Tally(predictions []Prediction, threshold float64) map[string]int {
	counts := make(map[string]int)
	for _, p := range predictions {
		if p.Probability > threshold {
			counts[p.Tag]++
		}
	}
	return counts
}

// Tags returns the keys of a tally in sorted order.
func Tags(counts map[string]int) []string {
	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ErrNoImage is returned when asked to classify an empty image.
var ErrNoImage = errors.New("no image data to classify")

// maxResponseBytes caps the prediction response body.
const maxResponseBytes = 1 << 20

// HTTPClassifier posts the raw image to a prediction endpoint and decodes
// {"predictions":[{"tagName":..,"probability":..}]} (Custom Vision format).
type HTTPClassifier struct {
	client   *http.Client
	endpoint string
	key      string
}

// NewHTTPClassifier creates a client. timeout <= 0 defaults to 30s.
func NewHTTPClassifier(endpoint, key string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClassifier{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		key:      key,
	}
}

type predictionResponse struct {
	Predictions []Prediction `json:"predictions"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) ([]Prediction, error) {
	if len(image) == 0 {
		return nil, ErrNoImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.key != "" {
		req.Header.Set("Prediction-Key", c.key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out predictionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return out.Predictions, nil
}

package wakeup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/port"
)

// HTTPWaker wakes a sleeping device by requesting its web interface.
type HTTPWaker struct {
	client *http.Client
	scheme string
}

func NewHTTPWaker(timeout time.Duration) *HTTPWaker {
	return &HTTPWaker{
		client: &http.Client{Timeout: timeout},
		scheme: "http",
	}
}

func (w *HTTPWaker) Wake(ctx context.Context, host string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s://%s/", w.scheme, host), nil)
	if err != nil {
		return 0, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("wakeup %s: %w", host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// ensure interface compliance
var _ port.DeviceWaker = (*HTTPWaker)(nil)

package hub

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nuyoahch/agent-runtime/internal/metrics"
)

type operationKey struct{}

func withOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "other"
}

// instrumentedTransport throttles every hub request, including the ones
// issued by the completions client, and records request metrics.
type instrumentedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	op := operationFrom(req.Context())
	start := time.Now()
	resp, err := base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.RecordHubRequest(op, status, time.Since(start))
	return resp, err
}

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const ScopeName = "github.com/Skotchmaster/apirest"

// Recorder counts authentication outcomes. A nil *Recorder records nothing.
type Recorder struct {
	failures metric.Int64Counter
	issued   metric.Int64Counter
	refresh  metric.Int64Counter
}

func New(meter metric.Meter) (*Recorder, error) {
	failures, err := meter.Int64Counter(
		"auth.failures",
		metric.WithDescription("Rejected authentication attempts by reason"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	issued, err := meter.Int64Counter(
		"auth.tokens.issued",
		metric.WithDescription("Tokens issued by kind"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	refresh, err := meter.Int64Counter(
		"auth.refresh.total",
		metric.WithDescription("Refresh attempts by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{failures: failures, issued: issued, refresh: refresh}, nil
}

func (r *Recorder) AuthFailure(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) TokenIssued(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) Refresh(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.refresh.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

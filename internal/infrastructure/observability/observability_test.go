package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

type countingCounter struct{ n float64 }

func (c *countingCounter) Add(d float64, _ ...observability.Label) { c.n += d }

func TestProvider_ResolvesCatalogKeys(t *testing.T) {
	requests := &countingCounter{}
	p := New(nil, nil, map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: requests,
	}, nil)

	p.Metrics().Counter(observability.MUsecaseRequests).Add(2)
	assert.Equal(t, float64(2), requests.n)

	// Keys outside the map are safe no-ops.
	require.NotNil(t, p.Metrics().Counter(observability.MOrphans))
	require.NotNil(t, p.Metrics().Histogram(observability.MUsecaseDuration))
	p.Metrics().Counter(observability.MOrphans).Add(1)
	p.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.1)

	ctx, span := p.Tracer().Start(context.Background(), "UC.Test")
	defer span.End()
	assert.NotNil(t, ctx)
	p.Logger().Info("ignored", observability.F("k", "v"))
}

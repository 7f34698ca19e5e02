package prometrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

func TestInstruments_RegistersCatalogOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New("", "", reg)

	counters, histograms := Instruments(r, observability.Catalog())
	require.Contains(t, counters, observability.MOrphans)
	require.Contains(t, histograms, observability.MUsecaseDuration)

	counters[observability.MOrphans].Add(1, observability.L("kind", "unavailable_without_reservation"))
	counters[observability.MOrphans].Add(1, observability.L("kind", "unavailable_without_reservation"))

	// second registration of the same name reuses the vector instead of panicking
	again := r.Counter(string(observability.MOrphans), "dup", "kind")
	again.Add(1, observability.L("kind", "unavailable_without_reservation"))

	n, err := testutil.GatherAndCount(reg, string(observability.MOrphans))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

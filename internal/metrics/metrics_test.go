package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPass(t *testing.T) {
	before := testutil.ToFloat64(events.WithLabelValues(PassAssign))
	RecordPass(PassAssign, 10, 8, 2, 2, 5*time.Millisecond)

	assert.Equal(t, before+8, testutil.ToFloat64(events.WithLabelValues(PassAssign)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(invalid.WithLabelValues(PassAssign)), 2.0)
}

func TestRecordIngest(t *testing.T) {
	before := testutil.ToFloat64(ingestMessages.WithLabelValues("unknown"))
	RecordIngestMessage("")
	assert.Equal(t, before+1, testutil.ToFloat64(ingestMessages.WithLabelValues("unknown")))

	RegisterMetrics()
	RegisterMetrics()
}

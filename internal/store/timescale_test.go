package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

func TestBucketQuery(t *testing.T) {
	end := at(13, 0)
	q, args := bucketQuery(at(12, 0), &end, 5*time.Minute)

	assert.Contains(t, q, "time_bucket(?::interval, observed_at)")
	assert.Contains(t, q, "observed_at >= ?")
	assert.Contains(t, q, "AND observed_at < ?")
	assert.Contains(t, q, "ORDER BY bucket_start ASC")
	assert.Equal(t, []interface{}{"300 seconds", at(12, 0), at(13, 0)}, args)

	open, openArgs := bucketQuery(at(12, 0), nil, 0)
	assert.NotContains(t, open, "observed_at < ?")
	assert.Len(t, openArgs, 2)
}

func TestReadingRowRoundTrip(t *testing.T) {
	in := reading(at(12, 0), 321)
	in.RawPayload = json.RawMessage(`{"data":{"kpi":{"pac":321}}}`)
	in.Temperature = ptr(19.5)

	out := fromReadingRow(toReadingRow(in))
	assert.Equal(t, in, out)
}

func TestToReadingRow_EmptyPayloadIsJSONNull(t *testing.T) {
	row := toReadingRow(solar.Reading{ObservedAt: at(12, 0)})
	assert.Equal(t, "null", string(row.RawPayload))
}

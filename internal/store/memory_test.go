package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

func ptr(v float64) *float64 { return &v }

func at(hh, mm int) time.Time {
	return time.Date(2024, 3, 1, hh, mm, 0, 0, time.UTC)
}

func reading(ts time.Time, power float64) solar.Reading {
	return solar.Reading{CurrentPowerW: power, RawPayload: json.RawMessage(`{}`), ObservedAt: ts}
}

func TestMemoryStore_LatestReading(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)

	_, err := s.LatestReading(ctx)
	assert.ErrorIs(t, err, solar.ErrNotFound)

	require.NoError(t, s.SaveReading(ctx, reading(at(12, 5), 120)))
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 0), 100)))

	latest, err := s.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120.0, latest.CurrentPowerW)
}

func TestMemoryStore_AveragePowerIntervalIsOpenClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 0), 100)))
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 5), 120)))
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 10), 80)))

	avg, err := s.AveragePower(ctx, at(12, 0), at(12, 10))
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.InDelta(t, 100.0, *avg, 1e-9)

	empty, err := s.AveragePower(ctx, at(13, 0), at(14, 0))
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMemoryStore_BucketsAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)

	r1 := reading(at(12, 1), 100)
	r1.UVIndex = ptr(4)
	r2 := reading(at(12, 3), 200)
	r3 := reading(at(12, 12), 50)
	r3.Temperature = ptr(22)
	for _, r := range []solar.Reading{r1, r2, r3} {
		require.NoError(t, s.SaveReading(ctx, r))
	}

	end := at(12, 15)
	buckets, err := s.Buckets(ctx, at(12, 0), &end, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.Equal(t, at(12, 0), buckets[0].BucketStart)
	assert.Equal(t, 150.0, buckets[0].AvgPowerW)
	require.NotNil(t, buckets[0].AvgUV)
	assert.Equal(t, 4.0, *buckets[0].AvgUV)
	assert.Nil(t, buckets[0].AvgTemp)

	assert.Equal(t, at(12, 10), buckets[1].BucketStart)
	assert.Nil(t, buckets[1].AvgUV)

	between, err := s.ReadingsBetween(ctx, at(12, 3), at(12, 12))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, 200.0, between[0].CurrentPowerW)
}

func TestMemoryStore_RetentionByCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveReading(ctx, reading(at(12, i), float64(i))))
	}
	assert.Equal(t, 2, s.ReadingCount())

	latest, err := s.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, latest.CurrentPowerW)
}

func TestMemoryStore_RetentionByAge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, time.Hour)

	require.NoError(t, s.SaveReading(ctx, reading(at(12, 0), 1)))
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 5), 2)))
	assert.Zero(t, s.ReadingCount(), "readings older than max age are all dropped")

	_, err := s.LatestReading(ctx)
	assert.ErrorIs(t, err, solar.ErrNotFound)

	recent := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.SaveReading(ctx, reading(at(12, 10), 3)))
	require.NoError(t, s.SaveReading(ctx, reading(recent, 4)))
	assert.Equal(t, 1, s.ReadingCount())

	latest, err := s.LatestReading(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, latest.CurrentPowerW)
}

func TestMemoryStore_Credentials(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 0)

	_, err := s.LatestCredential(ctx)
	assert.ErrorIs(t, err, solar.ErrNotFound)

	require.NoError(t, s.SaveCredential(ctx, solar.Credential{Token: []byte("a"), IssuedAt: at(12, 0)}))
	require.NoError(t, s.SaveCredential(ctx, solar.Credential{Token: []byte("b"), IssuedAt: at(12, 6)}))

	latest, err := s.LatestCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), latest.Token)
	assert.Equal(t, 2, s.CredentialCount())
}

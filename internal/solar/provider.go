package solar

import (
	"context"
	"time"
)

// CredentialProvider hands out a valid portal credential.
type CredentialProvider interface {
	EnsureCredential(ctx context.Context) (Credential, error)
	// Invalidate forces the next EnsureCredential to log in again.
	Invalidate()
}

// SolarSource fetches the authenticated plant details.
type SolarSource interface {
	FetchSolar(ctx context.Context, cred Credential) (SolarPartial, error)
}

// UVSource fetches the current UV index for a named station.
type UVSource interface {
	FetchUV(ctx context.Context, station string) (float64, error)
}

// WeatherSource fetches the current air temperature for a geocode.
type WeatherSource interface {
	FetchTemperature(ctx context.Context, geocode string) (float64, error)
}

// Forwarder pushes a committed reading to a downstream sink.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, payload ForwardPayload) error
}

// Store is the append-only time-series contract for readings.
type Store interface {
	SaveReading(ctx context.Context, r Reading) error
	// LatestReading returns ErrNotFound when the store is empty.
	LatestReading(ctx context.Context) (Reading, error)
	// AveragePower averages current power over readings observed in (from, to].
	// A nil result means no readings fell in the interval.
	AveragePower(ctx context.Context, from, to time.Time) (*float64, error)
	// Buckets groups readings observed in [from, to) into width-sized buckets,
	// ascending, omitting empty buckets. A nil to leaves the range open-ended.
	Buckets(ctx context.Context, from time.Time, to *time.Time, width time.Duration) ([]HistoryBucket, error)
	// ReadingsBetween returns readings observed in [from, to), ascending.
	ReadingsBetween(ctx context.Context, from, to time.Time) ([]Reading, error)
	Ping(ctx context.Context) error
}

// CredentialStore persists issued credentials. Rows are only ever inserted.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c Credential) error
	// LatestCredential returns ErrNotFound when nothing was issued yet.
	LatestCredential(ctx context.Context) (Credential, error)
}

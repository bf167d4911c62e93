package solar

import (
	"encoding/json"
	"time"
)

// Standard rolling windows, in minutes.
const (
	Window15Minutes  = 15
	Window60Minutes  = 60
	Window180Minutes = 180
)

// StandardWindows lists the rolling windows served by current() and forwarded downstream.
var StandardWindows = []int{Window15Minutes, Window60Minutes, Window180Minutes}

// DefaultBucketWidth is the fixed width of history buckets.
const DefaultBucketWidth = 5 * time.Minute

// Credential is an opaque session artifact issued by the solar portal.
// It is never mutated; a stale credential is superseded by a new one.
type Credential struct {
	Token    []byte    `json:"token"`
	IssuedAt time.Time `json:"issuedAt"` // always UTC
}

// Age reports how old the credential is at now.
func (c Credential) Age(now time.Time) time.Duration {
	return now.Sub(c.IssuedAt)
}

// SolarPartial is the authenticated half of a reading.
type SolarPartial struct {
	PowerW      float64
	TodayKWh    float64
	MonthKWh    float64
	LifetimeKWh float64

	// Raw is the full upstream response, kept verbatim.
	Raw json.RawMessage
}

// Reading is one fused, immutable observation.
type Reading struct {
	CurrentPowerW float64         `json:"currentPowerW"`
	RawPayload    json.RawMessage `json:"rawPayload"`
	UVIndex       *float64        `json:"uvIndex"`
	Temperature   *float64        `json:"temperature"`
	ObservedAt    time.Time       `json:"observedAt"` // always UTC
}

// RollingAverage is the mean power over a trailing window.
// Value is nil when no readings fall inside the window.
type RollingAverage struct {
	WindowMinutes int      `json:"windowMinutes"`
	Value         *float64 `json:"value"`
}

// HistoryBucket is the per-bucket average of readings over a fixed-width interval.
type HistoryBucket struct {
	BucketStart time.Time `json:"bucketStart"`
	AvgPowerW   float64   `json:"avgPowerW"`
	AvgUV       *float64  `json:"avgUv"`
	AvgTemp     *float64  `json:"avgTemp"`
}

// PartitionedHistory splits buckets into today and yesterday in the market offset.
type PartitionedHistory struct {
	Today     []HistoryBucket `json:"today"`
	Yesterday []HistoryBucket `json:"yesterday"`
}

// ForwardAverages holds the three standard rolling averages on the wire.
type ForwardAverages struct {
	Mins15  *float64 `json:"mins_15"`
	Mins60  *float64 `json:"mins_60"`
	Mins180 *float64 `json:"mins_180"`
}

// ForwardPayload is what downstream sinks receive after a committed cycle.
type ForwardPayload struct {
	CurrentKWh float64         `json:"current_kwh"`
	AverageKWh ForwardAverages `json:"average_kwh"`
	UVLevel    *float64        `json:"uv_level"`
}

// CurrentSummary is the latest reading with its derived statistics.
type CurrentSummary struct {
	Reading         Reading
	KPI             KPI
	YesterdayKWh    *float64
	RollingAverages []RollingAverage
}

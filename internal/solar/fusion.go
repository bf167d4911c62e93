package solar

import "time"

// Fuse combines one solar partial with the optional enrichments into a Reading.
// It performs no I/O and accepts nil for either enrichment.
func Fuse(sp SolarPartial, uv, temperature *float64, capturedAt time.Time) Reading {
	raw := make([]byte, len(sp.Raw))
	copy(raw, sp.Raw)

	return Reading{
		CurrentPowerW: sp.PowerW,
		RawPayload:    raw,
		UVIndex:       copyFloat(uv),
		Temperature:   copyFloat(temperature),
		ObservedAt:    capturedAt.UTC(),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

package solar

import (
	"encoding/json"
	"fmt"
)

// KPI holds the production figures re-derived from a raw plant-details payload.
type KPI struct {
	PowerW      float64 `json:"pac"`
	TodayKWh    float64 `json:"power"`
	MonthKWh    float64 `json:"month_generation"`
	LifetimeKWh float64 `json:"total_power"`
}

type plantDetailsEnvelope struct {
	Data struct {
		KPI *KPI `json:"kpi"`
	} `json:"data"`
}

// DecodeKPI extracts the KPI block from a raw plant-details response.
func DecodeKPI(raw json.RawMessage) (KPI, error) {
	var env plantDetailsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return KPI{}, fmt.Errorf("decode plant details: %w", err)
	}
	if env.Data.KPI == nil {
		return KPI{}, fmt.Errorf("plant details payload has no kpi block")
	}
	return *env.Data.KPI, nil
}

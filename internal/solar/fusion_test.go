package solar_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

func ptr(v float64) *float64 { return &v }

func TestFuse_WithoutEnrichments(t *testing.T) {
	captured := time.Date(2024, 3, 1, 20, 0, 0, 0, solar.MarketZone(8*time.Hour))
	sp := solar.SolarPartial{PowerW: 2450, Raw: json.RawMessage(`{"data":{"kpi":{"pac":2450}}}`)}

	r := solar.Fuse(sp, nil, nil, captured)

	assert.Equal(t, 2450.0, r.CurrentPowerW)
	assert.Nil(t, r.UVIndex)
	assert.Nil(t, r.Temperature)
	assert.JSONEq(t, string(sp.Raw), string(r.RawPayload))
	assert.True(t, r.ObservedAt.Equal(captured))
	assert.Equal(t, time.UTC, r.ObservedAt.Location())
}

func TestFuse_CopiesInputs(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	uv, temp := 5.0, 18.5

	r := solar.Fuse(solar.SolarPartial{PowerW: 1, Raw: raw}, &uv, &temp, time.Now())
	raw[2] = 'b'
	uv = 9

	assert.Equal(t, `{"a":1}`, string(r.RawPayload))
	require.NotNil(t, r.UVIndex)
	assert.Equal(t, 5.0, *r.UVIndex)
	assert.Equal(t, 18.5, *r.Temperature)
}

func TestDecodeKPI(t *testing.T) {
	kpi, err := solar.DecodeKPI(json.RawMessage(`{"data":{"kpi":{"pac":2450,"power":14.2,"month_generation":512.3,"total_power":10234.5}}}`))
	require.NoError(t, err)
	assert.Equal(t, solar.KPI{PowerW: 2450, TodayKWh: 14.2, MonthKWh: 512.3, LifetimeKWh: 10234.5}, kpi)

	_, err = solar.DecodeKPI(json.RawMessage(`{"data":{}}`))
	assert.Error(t, err)

	_, err = solar.DecodeKPI(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestErrors_UnwrapAndClassify(t *testing.T) {
	cause := errors.New("401")
	up := &solar.UpstreamError{Source: "semsportal", StatusCode: 401, Unauthorized: true, Err: cause}
	wrapped := &solar.AuthError{Err: up}

	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, solar.IsUnauthorized(wrapped))
	assert.False(t, solar.IsUnauthorized(&solar.StoreError{Op: "save", Err: cause}))

	fault := &solar.RuntimeFault{Value: cause}
	assert.ErrorIs(t, fault, cause)
	assert.Nil(t, (&solar.RuntimeFault{Value: "boom"}).Unwrap())
}

func TestGuard(t *testing.T) {
	err := solar.Guard(func() error { panic("boom") })
	var fault *solar.RuntimeFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "boom", fault.Value)
	assert.NotEmpty(t, fault.Stack)

	assert.NoError(t, solar.Guard(func() error { return nil }))
}

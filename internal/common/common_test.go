package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsAnyFold(t *testing.T) {
	assert.True(t, ContainsAnyFold("The Authorization has expired", "authorization", "nope"))
	assert.True(t, ContainsAnyFold("please log in again", "LOG IN AGAIN"))
	assert.False(t, ContainsAnyFold("all good", "expired"))
	assert.False(t, ContainsAnyFold("anything", ""))
	assert.False(t, ContainsAnyFold("anything"))
}

func TestParseTime(t *testing.T) {
	perth := time.FixedZone("UTC+08:00", 8*3600)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T12:00:00Z", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-03-01T20:00:00+08:00", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-03-01 20:00:00", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"1709294400", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"999999999", time.Date(2001, 9, 9, 1, 46, 39, 0, time.UTC)},
		{"20240301", time.Date(2024, 2, 29, 16, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTime(tc.in, perth)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	_, err := ParseTime("not a time", nil)
	assert.Error(t, err)
}

func TestParseOptionalTime(t *testing.T) {
	got, err := ParseOptionalTime("", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

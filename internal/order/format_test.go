package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRelative(t *testing.T) {
	now := time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC), "09:30 (today)"},
		{now.Add(-30 * time.Hour), "Yesterday, 09:00"},
		{now.Add(-3*24*time.Hour - time.Hour), "3 days ago"},
		{now.Add(-10 * 24 * time.Hour), "Feb 29, 2024, 15:00"},
		{now.Add(time.Minute), "15:01 (today)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatRelative(tc.at.UnixMilli(), now))
	}
}

func TestFormatFull(t *testing.T) {
	ts := time.Date(2024, time.March, 10, 15, 4, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "March 10, 2024, 15:04", FormatFull(ts, nil))
}

func TestStatusHelpers(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid())
		parsed, err := ParseStatus(" " + string(s) + " ")
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "In transit", StatusLabel(StatusInTransit))
	assert.Equal(t, "In warehouse", StatusLabel(StatusWarehouse))
	assert.Equal(t, "Delivered", StatusLabel(StatusDelivered))
	assert.Equal(t, "custom", StatusLabel("custom"))

	parsed, err := ParseStatus("DELIVERED")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, parsed)

	_, err = ParseStatus("lost")
	assert.Error(t, err)
}

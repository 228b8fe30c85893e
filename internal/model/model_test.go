package model

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMulChecked(t *testing.T) {
	tests := []struct {
		a, b int64
		want int64
		ok   bool
	}{
		{10, 200, 2000, true},
		{0, math.MaxInt64, 0, true},
		{math.MaxInt64 / 100, 100, math.MaxInt64 / 100 * 100, true},
		{math.MaxInt64/100 + 1, 100, 0, false},
		{92233720368547759, 100, 0, false},
		{math.MaxInt64, 2, 0, false},
		{-1, 5, 0, false},
	}
	for _, tt := range tests {
		got, ok := MulChecked(tt.a, tt.b)
		assert.Equal(t, tt.ok, ok, "%d × %d", tt.a, tt.b)
		assert.Equal(t, tt.want, got, "%d × %d", tt.a, tt.b)
	}
}

func TestAddChecked(t *testing.T) {
	got, ok := AddChecked(math.MaxInt64-1, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, ok = AddChecked(math.MaxInt64, 1)
	assert.False(t, ok)
	_, ok = AddChecked(-1, 1)
	assert.False(t, ok)
}

func TestToMinor(t *testing.T) {
	got, ok := ToMinor(decimal.RequireFromString("2.5"))
	assert.True(t, ok)
	assert.Equal(t, int64(250), got)

	_, ok = ToMinor(decimal.RequireFromString("0.005"))
	assert.False(t, ok, "sub-minor precision")

	_, ok = ToMinor(decimal.RequireFromString("92233720368547758.08"))
	assert.False(t, ok, "does not fit in int64")

	_, ok = ToMinor(decimal.RequireFromString("1e30"))
	assert.False(t, ok)
}

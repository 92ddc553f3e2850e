package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeSIPrefix(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{99960, "100k"},
		{99930, "99.9k"},
		{99.96, "100"},
		{99.93, "99.9"},
		{9.996, "10"},
		{9.993, "9.99"},
		{0.9996, "1"},
		{0.9993, "999m"},
		{0.09996, "100m"},
		{0.09993, "99.9m"},
		{2500000, "2.5M"},
		{0, "0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Encode(tc.value, true), "value %v", tc.value)
	}
}

func TestEncodePlain(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0.001, "0.001"},
		{0.01, "0.01"},
		{0.1, "0.1"},
		{100, "100"},
		{1000000, "1000000"},
		{2.5, "2.5"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Encode(tc.value, false), "value %v", tc.value)
	}
}

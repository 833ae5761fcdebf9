package domain

import (
	"testing"

	"devicepulse/internal/jsoncol"
)

func TestSpeedsAreReadIndependently(t *testing.T) {
	cases := []struct {
		name     string
		traffic  string
		down, up *float64
	}{
		{"both numbers", `{"download_speed_mbps":42.5,"upload_speed_mbps":7}`, f(42.5), f(7)},
		{"numeric string sibling", `{"download_speed_mbps":"12.5","upload_speed_mbps":3.2}`, f(12.5), f(3.2)},
		{"garbage sibling", `{"download_speed_mbps":"fast","upload_speed_mbps":3.2}`, nil, f(3.2)},
		{"upload missing", `{"download_speed_mbps":88}`, f(88), nil},
		{"explicit null", `{"download_speed_mbps":null,"upload_speed_mbps":1}`, nil, f(1)},
		{"no payload", ``, nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Report{NetworkTraffic: jsoncol.JSON(tc.traffic)}
			down, up := r.Speeds()
			if !sameSpeed(down, tc.down) || !sameSpeed(up, tc.up) {
				t.Fatalf("got down=%v up=%v, want down=%v up=%v", deref(down), deref(up), deref(tc.down), deref(tc.up))
			}
		})
	}
}

func f(v float64) *float64 { return &v }

func sameSpeed(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

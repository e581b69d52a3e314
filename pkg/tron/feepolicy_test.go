// Copyright 2025 Certen Protocol

package tron

import "testing"

func TestFeePolicyApply(t *testing.T) {
	cases := []struct {
		name string
		p    FeePolicy
		base int64
		want int64
	}{
		{
			name: "headroom under cap",
			p:    FeePolicy{CapSun: 1_000_000_000, HeadroomPPM: 200_000},
			base: 1_000_000,
			want: 1_200_000,
		},
		{
			name: "headroom clamped to cap",
			p:    FeePolicy{CapSun: 1_000_000, HeadroomPPM: 1_000_000},
			base: 900_000,
			want: 1_000_000,
		},
		{
			name: "zero cap means uncapped",
			p:    FeePolicy{CapSun: 0, HeadroomPPM: 500_000},
			base: 1_000_000,
			want: 1_500_000,
		},
		{
			name: "negative base treated as zero",
			p:    FeePolicy{CapSun: 1_000_000_000, HeadroomPPM: 200_000},
			base: -500,
			want: 0,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.p.Apply(c.base)
			if got != c.want {
				t.Errorf("Apply(%d) = %d, want %d", c.base, got, c.want)
			}
		})
	}
}

func TestClampEnergy(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{in: 0, want: minEnergyRequired},
		{in: 10_000, want: 10_000},
		{in: minEnergyRequired, want: minEnergyRequired},
		{in: 200_000, want: 200_000},
	}
	for _, c := range cases {
		if got := clampEnergy(c.in); got != c.want {
			t.Errorf("clampEnergy(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jaipur (26.9124, 75.7873) to Pilani (28.3636, 75.5868) ~ 162 km
	d := HaversineKm(26.9124, 75.7873, 28.3636, 75.5868)
	if d < 150 || d > 175 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineSamePointIsZero(t *testing.T) {
	if d := HaversineKm(28.3636, 75.5868, 28.3636, 75.5868); d != 0 {
		t.Fatalf("expected 0, got %v", d)
	}
}

func TestHaversineHalfCircumference(t *testing.T) {
	d := Distance(Coordinates{Lat: 0, Lng: 0}, Coordinates{Lat: 0, Lng: 180})
	if math.Abs(d-20015) > 200 {
		t.Fatalf("expected ~20015 km, got %v", d)
	}
}

func TestCoordinatesValid(t *testing.T) {
	cases := []struct {
		c    Coordinates
		want bool
	}{
		{Coordinates{28.36, 75.58}, true},
		{Coordinates{90, 180}, true},
		{Coordinates{-90.1, 0}, false},
		{Coordinates{0, 180.5}, false},
		{Coordinates{math.NaN(), 0}, false},
	}
	for _, tc := range cases {
		if got := tc.c.Valid(); got != tc.want {
			t.Fatalf("Valid(%+v) = %v, want %v", tc.c, got, tc.want)
		}
	}
}

func TestPointAxisOrder(t *testing.T) {
	p := Coordinates{Lat: 28.3, Lng: 75.5}.Point()
	if p.Lon() != 75.5 || p.Lat() != 28.3 {
		t.Fatalf("unexpected point %v", p)
	}
}

package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersSamePoint(t *testing.T) {
	t.Parallel()
	pts := [][2]float64{
		{0, 0},
		{52.52, 13.405},
		{-33.8688, 151.2093},
		{90, 0},
		{-90, 180},
	}
	for _, p := range pts {
		if d := DistanceMeters(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("DistanceMeters(%v, %v, same) = %v, want 0", p[0], p[1], d)
		}
	}
}

func TestDistanceMetersSymmetry(t *testing.T) {
	t.Parallel()
	cases := [][4]float64{
		{52.52, 13.405, 48.8566, 2.3522},
		{-33.8688, 151.2093, 35.6762, 139.6503},
		{0.0001, 0.0001, -0.0001, -0.0001},
		{89.9, 179.9, -89.9, -179.9},
	}
	for _, c := range cases {
		ab := DistanceMeters(c[0], c[1], c[2], c[3])
		ba := DistanceMeters(c[2], c[3], c[0], c[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("distance not symmetric: a->b=%v b->a=%v", ab, ba)
		}
	}
}

// Along a meridian the haversine formula reduces to R * |dLat|, which gives
// exact expected values without a second reference implementation.
func TestDistanceMetersAlongMeridian(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		lat1, lat2 float64
		lon        float64
	}{
		{"one degree at greenwich", 0, 1, 0},
		{"half degree mid latitude", 52, 52.5, 13.4},
		{"small hop", 10, 10.0054, -74},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := earthRadiusMeters * math.Abs(tc.lat2-tc.lat1) * math.Pi / 180
			got := DistanceMeters(tc.lat1, tc.lon, tc.lat2, tc.lon)
			if math.Abs(got-want) > 0.001 {
				t.Errorf("DistanceMeters = %v, want %v", got, want)
			}
		})
	}
}

// On the equator the formula reduces to R * |dLon|.
func TestDistanceMetersAlongEquator(t *testing.T) {
	t.Parallel()
	want := earthRadiusMeters * 2 * math.Pi / 180
	got := DistanceMeters(0, 10, 0, 12)
	if math.Abs(got-want) > 0.001 {
		t.Errorf("DistanceMeters = %v, want %v", got, want)
	}
}

func TestDistanceMetersClassroomScale(t *testing.T) {
	t.Parallel()
	// 0.0054 degrees of latitude is just over 600 m; a 500 m geofence must
	// reject it and a 700 m one must accept it.
	d := DistanceMeters(6.9271, 79.8612, 6.9325, 79.8612)
	if d < 595 || d > 606 {
		t.Fatalf("DistanceMeters = %v, want roughly 600", d)
	}
	if WithinRadius(d, 500) {
		t.Errorf("WithinRadius(%v, 500) = true, want false", d)
	}
	if !WithinRadius(d, 700) {
		t.Errorf("WithinRadius(%v, 700) = false, want true", d)
	}
}

func TestWithinRadiusBoundary(t *testing.T) {
	t.Parallel()
	if !WithinRadius(500, 500) {
		t.Error("WithinRadius(500, 500) = false, want true (boundary inclusive)")
	}
	if WithinRadius(500.01, 500) {
		t.Error("WithinRadius(500.01, 500) = true, want false")
	}
	if !WithinRadius(0, 0) {
		t.Error("WithinRadius(0, 0) = false, want true")
	}
}

func TestValidCoordinate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"origin", 0, 0, true},
		{"poles", 90, 0, true},
		{"south pole", -90, 0, true},
		{"date line", 0, 180, true},
		{"anti date line", 0, -180, true},
		{"lat too big", 90.0001, 0, false},
		{"lat too small", -91, 0, false},
		{"lon too big", 0, 180.5, false},
		{"lon too small", 0, -181, false},
		{"nan lat", math.NaN(), 0, false},
		{"nan lon", 0, math.NaN(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidCoordinate(tc.lat, tc.lon); got != tc.want {
				t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
			}
		})
	}
}

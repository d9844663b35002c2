package terrain

import (
	"math"
	"testing"
)

func TestTileIndex(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		zoom     int
		wantX    int
		wantY    int
	}{
		{"null island z0", 0, 0, 0, 0, 0},
		{"null island z1", 0, 0, 1, 1, 1},
		{"munich z12", 11.576, 48.137, 12, 2179, 1421},
		{"sydney z10", 151.21, -33.87, 10, 942, 614},
		{"date line east", 179.999, 0, 4, 15, 8},
		{"date line wrap", 181, 0, 4, 0, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, fx, fy := tileIndex(tt.lon, tt.lat, tt.zoom)
			if key.Z != tt.zoom || key.X != tt.wantX || key.Y != tt.wantY {
				t.Errorf("tileIndex(%f, %f, %d) = %s, want %d/%d/%d",
					tt.lon, tt.lat, tt.zoom, key, tt.zoom, tt.wantX, tt.wantY)
			}
			if fx < 0 || fx >= 1 || fy < 0 || fy >= 1 {
				t.Errorf("fractional position out of range: %f, %f", fx, fy)
			}
		})
	}
}

func TestTileIndex_PolarClamp(t *testing.T) {
	key, _, _ := tileIndex(0, 89.9, 4)
	if key.Y != 0 {
		t.Errorf("near-pole latitude must clamp to the top row, got y=%d", key.Y)
	}
	key, _, _ = tileIndex(0, -89.9, 4)
	if key.Y != 15 {
		t.Errorf("near-pole latitude must clamp to the bottom row, got y=%d", key.Y)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, elev := range []float64{-10000, -432.1, 0, 8.3, 517.5, 8848.9} {
		r, g, b := encodeElevation(elev)
		rgb := float64(int(r)*65536 + int(g)*256 + int(b))
		got := -10000.0 + rgb*0.1
		if math.Abs(got-elev) > 0.05 {
			t.Errorf("round trip for %f = %f", elev, got)
		}
	}
}

func TestDecodeTile(t *testing.T) {
	const size = 8
	data, err := newImageFromGrid(size, func(px, py int) float64 {
		return float64(py*size+px) * 10
	})
	if err != nil {
		t.Fatal(err)
	}

	tile, err := decodeTile(TileKey{Z: 12, X: 1, Y: 2}, data)
	if err != nil {
		t.Fatal(err)
	}

	// Corner pixels.
	if got := tile.Sample(0, 0); math.Abs(got) > 0.05 {
		t.Errorf("Sample(0,0) = %f, want 0", got)
	}
	wantLast := float64(size*size-1) * 10
	if got := tile.Sample(0.999, 0.999); math.Abs(got-wantLast) > 0.05 {
		t.Errorf("Sample(1-,1-) = %f, want %f", got, wantLast)
	}

	// Center of pixel (3, 5).
	fx := (3.0 + 0.5) / size
	fy := (5.0 + 0.5) / size
	want := float64(5*size+3) * 10
	if got := tile.Sample(fx, fy); math.Abs(got-want) > 0.05 {
		t.Errorf("Sample(%f,%f) = %f, want %f", fx, fy, got, want)
	}
}

func TestDecodeTile_BadData(t *testing.T) {
	if _, err := decodeTile(TileKey{}, []byte("not a png")); err == nil {
		t.Error("decode of junk bytes must fail")
	}
}

func TestExpandTileURL(t *testing.T) {
	got := expandTileURL("https://tiles.example/{z}/{x}/{y}.png?key={key}", TileKey{Z: 12, X: 34, Y: 56}, "s3cret")
	want := "https://tiles.example/12/34/56.png?key=s3cret"
	if got != want {
		t.Errorf("expandTileURL = %q, want %q", got, want)
	}
}

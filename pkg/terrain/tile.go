package terrain

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
)

// webMercatorMaxLat is the latitude limit of the tile projection.
const webMercatorMaxLat = 85.05112878

// TileKey identifies a tile in the slippy-map scheme.
type TileKey struct {
	Z, X, Y int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// tileIndex converts a coordinate to its tile key plus the fractional
// position within that tile (fx, fy in [0, 1)).
func tileIndex(lon, lat float64, zoom int) (key TileKey, fx, fy float64) {
	if lat > webMercatorMaxLat {
		lat = webMercatorMaxLat
	}
	if lat < -webMercatorMaxLat {
		lat = -webMercatorMaxLat
	}
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}

	n := float64(int(1) << zoom)
	x := (lon + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	y := (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n

	tx := int(math.Floor(x))
	ty := int(math.Floor(y))

	// Clamp the edge case of lat/lon exactly on the far boundary.
	maxIdx := int(n) - 1
	if tx > maxIdx {
		tx = maxIdx
	}
	if ty > maxIdx {
		ty = maxIdx
	}
	if ty < 0 {
		ty = 0
	}

	return TileKey{Z: zoom, X: tx, Y: ty}, x - float64(tx), y - float64(ty)
}

// Tile is a decoded elevation raster. Immutable once decoded; safe to share.
type Tile struct {
	Key  TileKey
	size int
	elev []float64
}

// decodeTile decodes a terrain-RGB PNG into an elevation grid using the
// fixed linear encoding of the raster source:
//
//	elevation = -10000 + (R*65536 + G*256 + B) * 0.1
//
// This formula is the compatibility contract with the tile provider and must
// not be changed.
func decodeTile(key TileKey, data []byte) (*Tile, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tile %s: decode failed: %w", key, err)
	}

	b := img.Bounds()
	size := b.Dx()
	if size == 0 || b.Dy() != size {
		return nil, fmt.Errorf("tile %s: unexpected raster shape %dx%d", key, b.Dx(), b.Dy())
	}

	t := &Tile{
		Key:  key,
		size: size,
		elev: make([]float64, size*size),
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels; the encoding uses 8-bit values.
			rgb := float64((r>>8)*65536 + (g>>8)*256 + (bl >> 8))
			t.elev[y*size+x] = -10000.0 + rgb*0.1
		}
	}

	return t, nil
}

// Sample returns the elevation at the fractional tile position (fx, fy in [0, 1)).
func (t *Tile) Sample(fx, fy float64) float64 {
	px := int(fx * float64(t.size))
	py := int(fy * float64(t.size))
	if px < 0 {
		px = 0
	}
	if px >= t.size {
		px = t.size - 1
	}
	if py < 0 {
		py = 0
	}
	if py >= t.size {
		py = t.size - 1
	}
	return t.elev[py*t.size+px]
}

// encodeElevation is the inverse of the raster encoding, used by tests and
// synthetic tile builders.
func encodeElevation(elev float64) (r, g, b uint8) {
	v := int(math.Round((elev + 10000.0) / 0.1))
	if v < 0 {
		v = 0
	}
	if v > 0xFFFFFF {
		v = 0xFFFFFF
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// newImageFromGrid renders an elevation grid into a PNG, for synthetic tile
// sources.
func newImageFromGrid(size int, at func(px, py int) float64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b := encodeElevation(at(x, y))
			i := img.PixOffset(x, y)
			img.Pix[i] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = 0xFF
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

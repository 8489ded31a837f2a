package mosaic

import (
	"testing"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

func TestQuantizeSaturates(t *testing.T) {
	tests := []struct {
		name  string
		dtype geotiff.DType
		in    float64
		want  uint16
	}{
		{"uint16 above range", geotiff.Uint16, 70000, 65535},
		{"uint16 below range", geotiff.Uint16, -5, 0},
		{"uint16 in range", geotiff.Uint16, 1234.9, 1234},
		{"uint16 max exact", geotiff.Uint16, 65535, 65535},
		{"uint8 above range", geotiff.Uint8, 300, 255},
		{"uint8 below range", geotiff.Uint8, -0.001, 0},
		{"uint8 in range", geotiff.Uint8, 254.7, 254},
		{"zero", geotiff.Uint16, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quantize([]float64{tt.in}, tt.dtype)
			if got[0] != tt.want {
				t.Errorf("quantize(%v, %s) = %d, want %d", tt.in, tt.dtype, got[0], tt.want)
			}
		})
	}
}

func TestQuantizeWholeSlice(t *testing.T) {
	in := []float64{-1, 0, 0.5, 100, 70000}
	got := quantize(in, geotiff.Uint16)
	want := []uint16{0, 0, 0, 100, 65535}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

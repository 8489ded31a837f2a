package geotiff

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
)

func testHeader(w, h int, dt DType) Header {
	nodata := 0.0
	return Header{
		Width:     w,
		Height:    h,
		DType:     dt,
		Transform: geo.FromOrigin(650000, 6470000, 1, 1),
		EPSG:      3301,
		NoData:    &nodata,
	}
}

func rampPixels(w, h int, max int) []uint16 {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = uint16(i % (max + 1))
	}
	return pix
}

func TestWriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		dtype DType
		w, h  int
		max   int
	}{
		{"uint8 small", Uint8, 17, 9, 255},
		{"uint16 small", Uint16, 9, 17, 65535},
		{"uint16 single pixel", Uint16, 1, 1, 65535},
		{"uint8 wide", Uint8, 300, 4, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.tif")
			h := testHeader(tt.w, tt.h, tt.dtype)
			h.Description = "round trip"
			pix := rampPixels(tt.w, tt.h, tt.max)

			if err := Write(path, h, pix); err != nil {
				t.Fatalf("write: %v", err)
			}

			r, err := ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}

			if r.Width != tt.w || r.Height != tt.h {
				t.Fatalf("shape = %dx%d, want %dx%d", r.Width, r.Height, tt.w, tt.h)
			}
			if r.DType != tt.dtype {
				t.Errorf("dtype = %q, want %q", r.DType, tt.dtype)
			}
			if r.EPSG != 3301 {
				t.Errorf("epsg = %d, want 3301", r.EPSG)
			}
			if r.NoData == nil || *r.NoData != 0 {
				t.Errorf("nodata = %v, want 0", r.NoData)
			}
			if r.Description != "round trip" {
				t.Errorf("description = %q", r.Description)
			}
			if diff := cmp.Diff(h.Transform, r.Transform); diff != "" {
				t.Errorf("transform mismatch (-want +got):\n%s", diff)
			}

			for i, v := range pix {
				if r.Data[i] != float32(v) {
					t.Fatalf("pixel %d = %v, want %d", i, r.Data[i], v)
				}
			}
		})
	}
}

func TestWriteAlignsIFDOffset(t *testing.T) {
	// The IFD and value area must start at an even offset regardless of
	// how long the compressed strips come out. Varying shape and content
	// exercises both parities of the strip total.
	for i, tc := range []struct {
		w, h  int
		dtype DType
		seed  int
	}{
		{1, 1, Uint8, 0},
		{3, 3, Uint8, 1},
		{5, 7, Uint8, 17},
		{13, 11, Uint16, 3},
		{31, 2, Uint16, 251},
	} {
		path := filepath.Join(t.TempDir(), "align.tif")
		pix := make([]uint16, tc.w*tc.h)
		for j := range pix {
			pix[j] = uint16((j*tc.seed + 7*j*j) % 997)
		}
		if err := Write(path, testHeader(tc.w, tc.h, tc.dtype), pix); err != nil {
			t.Fatalf("case %d: write: %v", i, err)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("case %d: read back: %v", i, err)
		}
		offset := binary.LittleEndian.Uint32(raw[4:8])
		if offset%2 != 0 {
			t.Errorf("case %d (%dx%d %s): IFD offset %d is odd", i, tc.w, tc.h, tc.dtype, offset)
		}

		// The file still reads back cleanly.
		if _, err := ReadFile(path); err != nil {
			t.Errorf("case %d: reread: %v", i, err)
		}
	}
}

func TestReadHeaderNoDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hdr.tif")
	h := testHeader(64, 48, Uint16)
	if err := Write(path, h, rampPixels(64, 48, 1000)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadHeaderFile(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if got.Width != 64 || got.Height != 48 {
		t.Errorf("shape = %dx%d, want 64x48", got.Width, got.Height)
	}
	b := got.Bound()
	if b.Min[0] != 650000 || b.Max[1] != 6470000 {
		t.Errorf("bound = %v", b)
	}
	if b.Max[0]-b.Min[0] != 64 || b.Max[1]-b.Min[1] != 48 {
		t.Errorf("bound size = %v", b)
	}
}

func TestWriteRejectsBadShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tif")
	h := testHeader(4, 4, Uint8)
	if err := Write(path, h, make([]uint16, 15)); err == nil {
		t.Fatal("expected error for short pixel buffer")
	}
}

func TestParseDType(t *testing.T) {
	tests := []struct {
		in      string
		want    DType
		wantErr bool
	}{
		{"uint8", Uint8, false},
		{"uint16", Uint16, false},
		{"float32", "", true},
		{"", "", true},
		{"UINT8", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("dtype = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDTypeMax(t *testing.T) {
	if Uint8.Max() != 255 || Uint16.Max() != 65535 {
		t.Error("dtype max values wrong")
	}
	if Uint8.Bits() != 8 || Uint16.Bits() != 16 {
		t.Error("dtype bit widths wrong")
	}
}

func TestTrimFloat(t *testing.T) {
	if trimFloat(0) != "0" {
		t.Errorf("trimFloat(0) = %q", trimFloat(0))
	}
	if trimFloat(-1.5) != "-1.5" {
		t.Errorf("trimFloat(-1.5) = %q", trimFloat(-1.5))
	}
	if trimFloat(math.Trunc(255)) != "255" {
		t.Errorf("trimFloat(255) = %q", trimFloat(255))
	}
}

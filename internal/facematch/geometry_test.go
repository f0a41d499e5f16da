package facematch

import (
	"image"
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        image.Rectangle
		b        image.Rectangle
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        image.Rect(0, 0, 10, 10),
			b:        image.Rect(0, 0, 10, 10),
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        image.Rect(0, 0, 10, 10),
			b:        image.Rect(20, 20, 30, 30),
			expected: 0.0,
		},
		{
			name:     "touching edges",
			a:        image.Rect(0, 0, 10, 10),
			b:        image.Rect(10, 0, 20, 10),
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        image.Rect(0, 0, 10, 10),
			b:        image.Rect(5, 5, 15, 15),
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			a:        image.Rect(0, 0, 20, 20),
			b:        image.Rect(5, 5, 15, 15),
			expected: 100.0 / 400.0,
		},
		{
			name:     "empty rectangles",
			a:        image.Rectangle{},
			b:        image.Rectangle{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestClampRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name   string
		region image.Rectangle
		want   image.Rectangle
		ok     bool
	}{
		{"inside", image.Rect(10, 10, 50, 50), image.Rect(10, 10, 50, 50), true},
		{"overhangs right and bottom", image.Rect(90, 70, 130, 120), image.Rect(90, 70, 100, 80), true},
		{"negative origin", image.Rect(-20, -5, 30, 40), image.Rect(0, 0, 30, 40), true},
		{"swapped corners", image.Rectangle{Min: image.Pt(50, 50), Max: image.Pt(10, 10)}, image.Rect(10, 10, 50, 50), true},
		{"entirely outside", image.Rect(200, 200, 300, 300), image.Rectangle{}, false},
		{"one pixel wide after clamp", image.Rect(99, 10, 140, 50), image.Rectangle{}, false},
		{"two pixels survives", image.Rect(98, 10, 140, 50), image.Rect(98, 10, 100, 50), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClampRegion(tt.region, bounds, 2)
			if ok != tt.ok {
				t.Fatalf("ClampRegion(%v) ok = %v, want %v", tt.region, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ClampRegion(%v) = %v, want %v", tt.region, got, tt.want)
			}
		})
	}
}

func TestSuppressDuplicates(t *testing.T) {
	regions := []image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(1, 0, 11, 10), // IoU 90/110 with the first
		image.Rect(50, 50, 60, 60),
		image.Rect(5, 5, 15, 15), // IoU 25/175 with the first
	}

	got := SuppressDuplicates(regions, 0.6)
	want := []image.Rectangle{regions[0], regions[2], regions[3]}
	if len(got) != len(want) {
		t.Fatalf("expected %d regions, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBBoxToRect(t *testing.T) {
	r, ok := BBoxToRect([]float64{1.7, 2.2, 30.9, 40})
	if !ok {
		t.Fatal("expected valid bbox")
	}
	if r != image.Rect(1, 2, 30, 40) {
		t.Errorf("BBoxToRect = %v", r)
	}

	if _, ok := BBoxToRect([]float64{0, 0, 10}); ok {
		t.Error("expected invalid bbox to be rejected")
	}
}

package jpegfrag

import (
	"reflect"
	"testing"
)

func TestPairPoints(t *testing.T) {
	tests := []struct {
		name   string
		points []int64
		want   []Range
	}{
		{"empty", nil, []Range{}},
		{"ordered", []int64{0, 300, 500, 900}, []Range{{0, 300}, {500, 900}}},
		{"unordered", []int64{500, 900, 0, 300}, []Range{{0, 300}, {500, 900}}},
		{"odd", []int64{0, 10, 20}, []Range{{0, 10}}},
		{"empty pair", []int64{5, 5, 10, 20}, []Range{{10, 20}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]int64(nil), tt.points...)

			got := pairPoints(tt.points)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pairPoints = %v, want %v", got, tt.want)
			}

			if !reflect.DeepEqual(in, tt.points) {
				t.Errorf("input modified: %v", tt.points)
			}
		})
	}
}

func TestMergeClose(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		gap    int64
		want   []Range
	}{
		{"empty", nil, 100, nil},
		{"close", []Range{{0, 100}, {150, 300}, {2000, 2100}}, 100, []Range{{0, 300}, {2000, 2100}}},
		{"exact gap", []Range{{0, 100}, {200, 300}}, 100, []Range{{0, 100}, {200, 300}}},
		{"contained", []Range{{0, 500}, {100, 200}, {550, 600}}, 100, []Range{{0, 600}}},
		{"chain", []Range{{0, 10}, {20, 30}, {40, 50}}, 11, []Range{{0, 50}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeClose(tt.ranges, tt.gap); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeClose = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGridSnap(t *testing.T) {
	const b = 4096

	tests := []struct {
		name   string
		grid   Grid
		ranges []Range
		want   []Range
	}{
		{"aligned", Grid{BlockSize: b}, []Range{{0, 2 * b}}, []Range{{0, 2 * b}}},
		{"end rounds up", Grid{BlockSize: b}, []Range{{0, 6200}}, []Range{{0, 2 * b}}},
		{"end rounds down", Grid{BlockSize: b}, []Range{{0, 6000}}, []Range{{0, b}}},
		{"end halfway", Grid{BlockSize: b}, []Range{{0, b + b/2}}, []Range{{0, 2 * b}}},
		{"start just after boundary", Grid{BlockSize: b}, []Range{{b + 4, 3 * b}}, []Range{{b, 3 * b}}},
		{"start just before boundary", Grid{BlockSize: b}, []Range{{2*b - 192, 4 * b}}, []Range{{2 * b, 4 * b}}},
		{"inferred start", Grid{BlockSize: b}, []Range{{5000, 3 * b}}, []Range{{b, 3 * b}}},
		{"weak detection", Grid{BlockSize: b}, []Range{{5000, 6000}}, []Range{}},
		{"shorter than a block", Grid{BlockSize: b}, []Range{{0, 1000}}, []Range{}},
		{"touching", Grid{BlockSize: b}, []Range{{0, b}, {b + 4, 2 * b}}, []Range{{0, 2 * b}}},
		{"unsorted", Grid{BlockSize: b}, []Range{{4 * b, 5 * b}, {0, b}}, []Range{{0, b}, {4 * b, 5 * b}}},
		{"clamped", Grid{BlockSize: b, FileSize: 10300}, []Range{{0, 10300}}, []Range{{0, 10300}}},
		{"past file size", Grid{BlockSize: b, FileSize: b}, []Range{{2 * b, 3 * b}}, []Range{}},
		{"origin", Grid{Origin: 100, BlockSize: b}, []Range{{100, b + 100}}, []Range{{100, b + 100}}},
		{"before origin", Grid{Origin: 2 * b, BlockSize: b}, []Range{{0, b}}, []Range{}},
		{"tolerance", Grid{BlockSize: b, Tolerance: 1000}, []Range{{b + 900, 2 * b}}, []Range{{b, 2 * b}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.grid.Snap(tt.ranges)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Snap = %v, want %v", got, tt.want)
			}

			// Snapping is idempotent.
			if again := tt.grid.Snap(got); !reflect.DeepEqual(again, got) {
				t.Errorf("Snap(Snap) = %v, want %v", again, got)
			}
		})
	}
}

func TestGridSnapDisabled(t *testing.T) {
	in := []Range{{3, 7}}

	got := Grid{}.Snap(in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Snap = %v, want %v", got, in)
	}
}

func TestRefine(t *testing.T) {
	ranges := []Range{{0, 5000}, {5500, 10300}}

	got := refine(ranges, &Options{MergeGap: 1024}, 10302)
	if want := []Range{{0, 10300}}; !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %v, want %v", got, want)
	}

	got = refine(ranges, &Options{MergeGap: 100}, 10302)
	if !reflect.DeepEqual(got, ranges) {
		t.Errorf("unmerged = %v, want %v", got, ranges)
	}

	// The grid takes the file size from the source.
	got = refine([]Range{{0, 10300}}, &Options{Grid: &Grid{BlockSize: 4096}}, 10300)
	if want := []Range{{0, 10300}}; !reflect.DeepEqual(got, want) {
		t.Errorf("snapped = %v, want %v", got, want)
	}
}

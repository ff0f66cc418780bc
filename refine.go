package jpegfrag

import (
	"cmp"
	"slices"

	"github.com/chronos-tachyon/assert"
)

// Grid describes the block layout of the storage a file was carved from.
// Fragments of a file stored in fixed-size blocks start and end on block
// boundaries.
type Grid struct {
	Origin    int64 // Offset of the first block boundary, usually 0.
	BlockSize int64
	// Tolerance is the largest distance, in bytes, over which a fragment start
	// is snapped to the nearest boundary. Defaults to BlockSize/8.
	Tolerance int64
	// FileSize clamps snapped ends. Zero means unknown.
	FileSize int64
}

// pairPoints sorts raw fragment points and pairs them into ranges. Empty pairs
// are dropped.
func pairPoints(points []int64) []Range {
	sorted := slices.Clone(points)
	slices.Sort(sorted)

	ranges := make([]Range, 0, len(sorted)/2)
	for i := 0; i+1 < len(sorted); i += 2 {
		if sorted[i+1] > sorted[i] {
			ranges = append(ranges, Range{Start: sorted[i], End: sorted[i+1]})
		}
	}

	return ranges
}

// MergeClose merges sorted ranges separated by fewer than maxGap bytes.
func MergeClose(ranges []Range, maxGap int64) []Range {
	if len(ranges) == 0 {
		return nil
	}

	merged := make([]Range, 0, len(ranges))
	cur := ranges[0]

	for _, next := range ranges[1:] {
		if next.Start-cur.End < maxGap {
			cur.End = max(cur.End, next.End)

			continue
		}

		merged = append(merged, cur)
		cur = next
	}

	return append(merged, cur)
}

// Snap aligns ranges to the grid.
//
// Ends are rounded to the nearest boundary, halfway rounding up, and clamped
// to the file size. A start within the tolerance of a boundary is snapped to
// it; otherwise the boundary below it is taken as an inferred start, which is
// kept only if at least one full block lies between it and the snapped end.
// Ranges that touch after snapping are merged, and ranges shorter than one
// block are dropped.
func (g Grid) Snap(ranges []Range) []Range {
	b := g.BlockSize
	if b <= 0 {
		return slices.Clone(ranges)
	}

	tol := g.Tolerance
	if tol <= 0 {
		tol = b / 8
	}

	snapped := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.End <= g.Origin || (g.FileSize > 0 && r.Start >= g.FileSize) {
			continue
		}

		end := g.Origin + (r.End-g.Origin)/b*b
		if 2*((r.End-g.Origin)%b) >= b {
			end += b
		}

		if g.FileSize > 0 && end > g.FileSize {
			end = g.FileSize
		}

		rel := max(r.Start-g.Origin, 0)
		floor := g.Origin + rel/b*b
		rem := rel % b

		var start int64
		switch {
		case rem <= tol:
			start = floor
		case b-rem <= tol:
			start = floor + b
		case end-floor >= b:
			start = floor
		default:
			// A weak detection that cannot be tied to a boundary.
			continue
		}

		if end > start {
			snapped = append(snapped, Range{Start: start, End: end})
		}
	}

	slices.SortFunc(snapped, func(a, b Range) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := make([]Range, 0, len(snapped))
	for _, r := range snapped {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, r.End)

			continue
		}

		merged = append(merged, r)
	}

	out := merged[:0]
	for _, r := range merged {
		if r.Len() >= b {
			out = append(out, r)
		}
	}

	return out
}

// refine turns raw fragment ranges into reported ones using the policy
// selected by o.
func refine(ranges []Range, o *Options, size int64) []Range {
	var out []Range
	if o.Grid != nil {
		g := *o.Grid
		if g.FileSize <= 0 && size > 0 {
			g.FileSize = size
		}

		out = g.Snap(ranges)
	} else {
		out = MergeClose(ranges, o.MergeGap)
	}

	for i, r := range out {
		assert.Assertf(r.End > r.Start, "range %v is empty", r)
		assert.Assertf(i == 0 || r.Start > out[max(i-1, 0)].End, "range %v overlaps %v", r, out[max(i-1, 0)])
	}

	return out
}

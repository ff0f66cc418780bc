package jpegfrag

import (
	"errors"
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		actual   []Range
		detected []Range
		matched  int
		accurate int
		rate     float64
		metric   float64
	}{
		{
			name:     "exact",
			actual:   []Range{{0, 100}, {200, 300}},
			detected: []Range{{0, 100}, {200, 300}},
			matched:  2,
			accurate: 2,
			rate:     100,
			metric:   100,
		},
		{
			name:     "start error",
			actual:   []Range{{1000, 2000}},
			detected: []Range{{1100, 2000}},
			matched:  1,
			accurate: 0,
			rate:     100,
			metric:   95,
		},
		{
			name:     "beyond tolerance",
			actual:   []Range{{10000, 20000}},
			detected: []Range{{10000, 20600}},
			matched:  0,
			accurate: 1,
			rate:     0,
			metric:   98.5,
		},
		{
			name:     "missed fragment",
			actual:   []Range{{0, 100}, {200, 300}},
			detected: []Range{{0, 100}},
			matched:  1,
			accurate: 1,
			rate:     50,
			metric:   50,
		},
		{
			name:   "nothing detected",
			actual: []Range{{0, 100}},
		},
		{
			name:     "nothing actual",
			detected: []Range{{0, 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compare(tt.actual, tt.detected)

			if len(s.Matches) != len(tt.actual) {
				t.Fatalf("%d matches, want %d", len(s.Matches), len(tt.actual))
			}

			if s.Matched != tt.matched || s.Accurate != tt.accurate {
				t.Errorf("matched %d, accurate %d; want %d, %d", s.Matched, s.Accurate, tt.matched, tt.accurate)
			}

			if !near(s.DetectionRate, tt.rate) || !near(s.Metric, tt.metric) {
				t.Errorf("rate %v, metric %v; want %v, %v", s.DetectionRate, s.Metric, tt.rate, tt.metric)
			}
		})
	}
}

func TestCompareClosest(t *testing.T) {
	actual := []Range{{0, 1000}, {5000, 6000}}
	detected := []Range{{5010, 6000}, {0, 990}}

	s := Compare(actual, detected)

	for i, want := range []Range{{0, 990}, {5010, 6000}} {
		m := s.Matches[i]
		if m.Detected == nil || *m.Detected != want {
			t.Errorf("match %d: detected %v, want %v", i, m.Detected, want)
		}
	}

	if s.Matches[0].EndDiff != 10 || s.Matches[1].StartDiff != 10 {
		t.Errorf("diffs %d, %d; want 10, 10", s.Matches[0].EndDiff, s.Matches[1].StartDiff)
	}

	// Each detected range is used once.
	s = Compare([]Range{{0, 100}, {0, 100}}, []Range{{0, 100}})
	if s.Matches[1].Detected != nil {
		t.Errorf("second match reused %v", s.Matches[1].Detected)
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		diff, at int64
		want     float64
	}{
		{0, 1000, 100},
		{100, 1000, 90},
		{5, 0, 100},
		{5000, 100, 0},
	}

	for _, tt := range tests {
		if got := accuracy(tt.diff, tt.at); !near(got, tt.want) {
			t.Errorf("accuracy(%d, %d) = %v, want %v", tt.diff, tt.at, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	data := grayJPEG(t, 512, 512, 60)

	e, err := Evaluate(data, DefaultLayout, 100)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if e.Seed < 100 || e.Seed >= 100+EvaluationPasses {
		t.Errorf("Seed = %d, want one of the pass seeds", e.Seed)
	}

	if e.Fragmentation == nil || e.Result == nil {
		t.Fatal("incomplete evaluation")
	}

	if len(e.Score.Matches) != 3 {
		t.Fatalf("%d matches, want 3", len(e.Score.Matches))
	}

	// The first fragment holds the header and is found from its first byte.
	if m := e.Score.Matches[0]; m.Detected == nil || m.StartDiff != 0 {
		t.Errorf("first fragment matched %v, start error %d", m.Detected, m.StartDiff)
	}
}

func TestEvaluateUnfragmented(t *testing.T) {
	data := grayJPEG(t, 256, 256, 61)

	e, err := Evaluate(data, Layout{}, 7)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// A single clean fragment is accurate in the first pass.
	if e.Seed != 7 {
		t.Errorf("Seed = %d, want 7", e.Seed)
	}

	if e.Score.Accurate != 1 || !near(e.Score.Metric, 100) {
		t.Errorf("score %+v, want one exact match", e.Score)
	}
}

func TestEvaluateErrors(t *testing.T) {
	if _, err := Evaluate([]byte("no image here"), DefaultLayout, 1); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("error = %v, want %v", err, ErrNoJPEG)
	}

	data := grayJPEG(t, 64, 64, 62)
	if _, err := Evaluate(data, DefaultLayout, 1, &Options{Grid: &Grid{}}); !errors.Is(err, ErrConfig) {
		t.Errorf("error = %v, want %v", err, ErrConfig)
	}
}

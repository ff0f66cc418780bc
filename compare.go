package jpegfrag

import (
	"math/rand"
	"sync"

	"github.com/golang/glog"
)

// Evaluation parameters.
const (
	// MatchTolerance is the largest start and end error, in bytes, for a
	// detected range to count as a correct detection.
	MatchTolerance = 500
	// AccuracyThreshold is the accuracy, in percent, both ends of every
	// fragment must reach for an evaluation pass to succeed.
	AccuracyThreshold = 94.0
	// EvaluationPasses is the number of fragmentations tried by Evaluate.
	EvaluationPasses = 4
)

// Match pairs a ground-truth fragment with the detected range closest to it.
type Match struct {
	Actual        Range   `json:"actual"`
	Detected      *Range  `json:"detected,omitempty"` // Nil if nothing was left to match.
	StartDiff     int64   `json:"startDiff"`
	EndDiff       int64   `json:"endDiff"`
	StartAccuracy float64 `json:"startAccuracy"`
	EndAccuracy   float64 `json:"endAccuracy"`
}

// Score summarizes how well detected ranges reproduce the ground truth.
type Score struct {
	Matches       []Match `json:"matches"`
	Matched       int     `json:"matched"`       // Matches within MatchTolerance on both ends.
	Accurate      int     `json:"accurate"`      // Matches reaching AccuracyThreshold on both ends.
	DetectionRate float64 `json:"detectionRate"` // Matched, as a percentage of the actual fragments.
	Metric        float64 `json:"metric"`        // Mean end-point accuracy.
}

// accuracy expresses the error diff relative to the offset it was measured at.
func accuracy(diff, at int64) float64 {
	if at <= 0 {
		return 100
	}

	return max(0, 100-float64(diff)/float64(at)*100)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}

	return x
}

// Compare matches each actual fragment, in order, with the unmatched detected
// range minimizing the sum of start and end errors.
func Compare(actual, detected []Range) Score {
	var s Score

	used := make([]bool, len(detected))
	var total float64

	for _, a := range actual {
		m := Match{Actual: a}

		best := -1
		var bestDelta int64
		for j, d := range detected {
			if used[j] {
				continue
			}

			delta := abs64(a.Start-d.Start) + abs64(a.End-d.End)
			if best < 0 || delta < bestDelta {
				best, bestDelta = j, delta
			}
		}

		if best >= 0 {
			used[best] = true
			d := detected[best]
			m.Detected = &d
			m.StartDiff = abs64(a.Start - d.Start)
			m.EndDiff = abs64(a.End - d.End)
			m.StartAccuracy = accuracy(m.StartDiff, a.Start)
			m.EndAccuracy = accuracy(m.EndDiff, a.End)

			total += (m.StartAccuracy + m.EndAccuracy) / 2

			if m.StartDiff < MatchTolerance && m.EndDiff < MatchTolerance {
				s.Matched++
			}

			if m.StartAccuracy >= AccuracyThreshold && m.EndAccuracy >= AccuracyThreshold {
				s.Accurate++
			}
		}

		s.Matches = append(s.Matches, m)
	}

	if len(actual) > 0 {
		s.DetectionRate = float64(s.Matched) / float64(len(actual)) * 100
		s.Metric = total / float64(len(actual))
	}

	return s
}

// Evaluation is one fragment-and-validate pass.
type Evaluation struct {
	Seed          int64          `json:"seed"`
	Fragmentation *Fragmentation `json:"fragmentation"`
	Result        *Result        `json:"result"`
	Score         Score          `json:"score"`
}

// Evaluate fragments data with layout EvaluationPasses times, each with its
// own noise, validates every copy and scores it against the ground truth.
// Passes run concurrently. The first pass, in seed order, in which every
// fragment is accurate is returned; failing that, the pass with the best
// metric.
func Evaluate(data []byte, layout Layout, seed int64, opts ...*Options) (*Evaluation, error) {
	evals := make([]*Evaluation, EvaluationPasses)
	errs := make([]error, EvaluationPasses)

	var wg sync.WaitGroup
	for i := range evals {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			e := &Evaluation{Seed: seed + int64(i)}

			f, err := Fragment(data, layout, rand.New(rand.NewSource(e.Seed)))
			if err != nil {
				errs[i] = err

				return
			}

			res, err := ValidateSource(NewByteSource(f.Data), opts...)
			if err != nil {
				errs[i] = err

				return
			}

			e.Fragmentation = f
			e.Result = res
			e.Score = Compare(f.Truth(), res.Ranges)
			evals[i] = e
		}(i)
	}

	wg.Wait()

	var best *Evaluation
	for i, e := range evals {
		if errs[i] != nil {
			return nil, errs[i]
		}

		if glog.V(1) {
			glog.Infof("jpegfrag: pass %d seed %d: %d of %d accurate, metric %.2f", i+1, e.Seed, e.Score.Accurate, len(e.Score.Matches), e.Score.Metric)
		}

		if n := len(e.Score.Matches); n > 0 && e.Score.Accurate == n {
			return e, nil
		}

		if best == nil || e.Score.Metric > best.Score.Metric {
			best = e
		}
	}

	return best, nil
}

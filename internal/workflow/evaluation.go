package workflow

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CompletionPolicy decides when committee evaluation of a submission is complete.
type CompletionPolicy string

const (
	// CompletionSubmitted completes once every recorded mark is final.
	CompletionSubmitted CompletionPolicy = "submitted"
	// CompletionRoster completes once every rostered committee member has a final mark.
	CompletionRoster CompletionPolicy = "roster"
)

// ParseCompletionPolicy normalises a configured policy name.
func ParseCompletionPolicy(raw string) (CompletionPolicy, error) {
	switch CompletionPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CompletionSubmitted:
		return CompletionSubmitted, nil
	case CompletionRoster:
		return CompletionRoster, nil
	default:
		return "", fmt.Errorf("unknown evaluation completion policy %q", raw)
	}
}

// MarkState is the part of an evaluation mark the completion check looks at.
type MarkState struct {
	EvaluatorID uint
	Score       float64
	Final       bool
}

// EvaluationComplete applies policy to the marks recorded for a submission.
// roster is ignored by CompletionSubmitted.
func EvaluationComplete(policy CompletionPolicy, marks []MarkState, roster []uint) bool {
	total := len(marks)
	finalized := 0
	finalBy := make(map[uint]bool, total)
	for _, mark := range marks {
		if mark.Final {
			finalized++
			finalBy[mark.EvaluatorID] = true
		}
	}

	if total == 0 || finalized != total {
		return false
	}

	if policy != CompletionRoster {
		return true
	}

	if len(roster) == 0 {
		return false
	}
	for _, evaluatorID := range roster {
		if !finalBy[evaluatorID] {
			return false
		}
	}
	return true
}

// CheckRecordMark rejects marks for submissions not open for evaluation.
func CheckRecordMark(status Status) error {
	switch {
	case status.AcceptsMarks():
		return nil
	case status.IsTerminal():
		return Violation(status, ActionRecordMark, ErrEvaluationFinalized)
	default:
		return Violation(status, ActionRecordMark, ErrEvaluationClosed)
	}
}

// Summary aggregates the marks of one submission.
type Summary struct {
	Total     int
	Finalized int
	Average   float64
	HasFinal  bool
}

// Summarize counts marks and averages the finalized scores only.
func Summarize(marks []MarkState) Summary {
	summary := Summary{Total: len(marks)}
	finals := make([]float64, 0, len(marks))
	for _, mark := range sortedMarks(marks) {
		if mark.Final {
			finals = append(finals, mark.Score)
		}
	}
	summary.Finalized = len(finals)
	summary.Average, summary.HasFinal = Mean(finals)
	return summary
}

// Mean returns the arithmetic mean of values and false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

func sortedMarks(marks []MarkState) []MarkState {
	out := make([]MarkState, len(marks))
	copy(out, marks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].EvaluatorID < out[j].EvaluatorID })
	return out
}

// Round rounds v half away from zero to places decimal digits.
func Round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

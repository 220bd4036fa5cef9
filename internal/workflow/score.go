package workflow

import (
	"fmt"
	"sort"
)

// ScorePrecision is the number of decimal digits retained in a stored total.
const ScorePrecision = 4

// Weights splits a document type score between supervisor and committee, in percent.
type Weights struct {
	Supervisor int
	Committee  int
}

// Validate checks that both weights are percentages summing to 100.
func (w Weights) Validate() error {
	if w.Supervisor < 0 || w.Supervisor > 100 {
		return Invalid("weight_supervisor", "must be between 0 and 100")
	}
	if w.Committee < 0 || w.Committee > 100 {
		return Invalid("weight_committee", "must be between 0 and 100")
	}
	if w.Supervisor+w.Committee != 100 {
		return Invalid("weights", fmt.Sprintf("must sum to 100, got %d", w.Supervisor+w.Committee))
	}
	return nil
}

// ScoreInput is one document type's contribution to a project total.
type ScoreInput struct {
	DocumentTypeID   uint
	DocumentTypeName string
	Weights          Weights
	SubmissionID     *uint
	SupervisorScore  *float64
	CommitteeScores  []MarkState
}

// ScoreComponent is the computed contribution of one document type.
type ScoreComponent struct {
	DocumentTypeID    uint    `json:"document_type_id"`
	DocumentTypeName  string  `json:"document_type_name"`
	SubmissionID      *uint   `json:"submission_id,omitempty"`
	WeightSupervisor  int     `json:"weight_supervisor"`
	WeightCommittee   int     `json:"weight_committee"`
	SupervisorScore   float64 `json:"supervisor_score"`
	CommitteeAvgScore float64 `json:"committee_avg_score"`
	Contribution      float64 `json:"contribution"`
	Contributing      bool    `json:"contributing"`
	FinalizedMarks    int     `json:"finalized_marks"`
}

// Contribution blends a supervisor score and committee average by weights.
func Contribution(supervisorScore, committeeAvg float64, w Weights) float64 {
	return supervisorScore*float64(w.Supervisor)/100 + committeeAvg*float64(w.Committee)/100
}

// ComputeTotal aggregates document type contributions into a project score.
// Only document types with a submission contribute; the total is the mean of
// their contributions. Intermediate values are never rounded; the returned
// total is rounded to ScorePrecision digits. Inputs are processed in document
// type order so repeated runs produce identical totals.
func ComputeTotal(inputs []ScoreInput) (float64, []ScoreComponent) {
	ordered := make([]ScoreInput, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].DocumentTypeID < ordered[j].DocumentTypeID })

	components := make([]ScoreComponent, 0, len(ordered))
	var sum float64
	contributing := 0

	for _, in := range ordered {
		component := ScoreComponent{
			DocumentTypeID:   in.DocumentTypeID,
			DocumentTypeName: in.DocumentTypeName,
			SubmissionID:     in.SubmissionID,
			WeightSupervisor: in.Weights.Supervisor,
			WeightCommittee:  in.Weights.Committee,
		}

		if in.SubmissionID != nil {
			if in.SupervisorScore != nil {
				component.SupervisorScore = *in.SupervisorScore
			}
			summary := Summarize(in.CommitteeScores)
			component.CommitteeAvgScore = summary.Average
			component.FinalizedMarks = summary.Finalized
			component.Contribution = Contribution(component.SupervisorScore, component.CommitteeAvgScore, in.Weights)
			component.Contributing = true

			sum += component.Contribution
			contributing++
		}

		components = append(components, component)
	}

	if contributing == 0 {
		return 0, components
	}

	return Round(sum/float64(contributing), ScorePrecision), components
}

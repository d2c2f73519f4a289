package model

// ReportRow is one line of the final report
type ReportRow struct {
	ID         string       `json:"id"`
	BookName   string       `json:"book_name"`
	Character  string       `json:"character"`
	Prediction int          `json:"prediction"`
	Verdict    VerdictLabel `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale"`
}

// ReportColumns is the column order of the tabular report
var ReportColumns = []string{"id", "book_name", "character", "prediction", "verdict", "confidence", "rationale"}

// Summary holds aggregate statistics over a report
type Summary struct {
	Total             int                  `json:"total"`
	PredictedPositive int                  `json:"predicted_positive"` // prediction == 1
	PredictedNegative int                  `json:"predicted_negative"` // prediction == 0
	ByVerdict         map[VerdictLabel]int `json:"by_verdict"`
	AverageConfidence float64              `json:"average_confidence"`
	Errors            int                  `json:"errors"` // Rows produced from error verdicts
}

// Mismatch is a labelled claim whose prediction disagrees with its label
type Mismatch struct {
	ID         string `json:"id"`
	Expected   int    `json:"expected"`
	Prediction int    `json:"prediction"`
}

// Evaluation compares predictions with ground-truth labels
type Evaluation struct {
	Labelled       int        `json:"labelled"`
	Compared       int        `json:"compared"`
	TruePositives  int        `json:"true_positives"`
	TrueNegatives  int        `json:"true_negatives"`
	FalsePositives int        `json:"false_positives"`
	FalseNegatives int        `json:"false_negatives"`
	Accuracy       float64    `json:"accuracy"`
	Precision      float64    `json:"precision"`
	Recall         float64    `json:"recall"`
	F1             float64    `json:"f1"`
	Mismatches     []Mismatch `json:"mismatches,omitempty"`
}

// Report is the complete aggregated output of a run
type Report struct {
	Rows       []ReportRow `json:"rows"`
	Summary    Summary     `json:"summary"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

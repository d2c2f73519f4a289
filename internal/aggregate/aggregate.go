// Package aggregate joins verdicts with claim metadata into the final report
package aggregate

import (
	"sort"
	"strconv"

	"github.com/ppiankov/veritas/internal/model"
)

// DefaultRationaleMax caps the rationale column
const DefaultRationaleMax = 200

// Aggregate builds one report row per verdict. Verdicts whose claim is unknown
// keep empty metadata. Rows are ordered by claim id, numerically when every id
// is an integer and lexicographically otherwise.
func Aggregate(verdicts []model.Verdict, claims []model.Claim, rationaleMax int) []model.ReportRow {
	if rationaleMax <= 0 {
		rationaleMax = DefaultRationaleMax
	}

	byID := make(map[string]model.Claim, len(claims))
	for _, c := range claims {
		byID[c.ClaimID] = c
	}

	rows := make([]model.ReportRow, 0, len(verdicts))
	for _, v := range verdicts {
		c := byID[v.ClaimID]
		rows = append(rows, model.ReportRow{
			ID:         v.ClaimID,
			BookName:   c.BookName,
			Character:  c.Character,
			Prediction: v.Verdict.Prediction(),
			Verdict:    v.Verdict,
			Confidence: v.Confidence,
			Rationale:  model.TruncateRunes(v.Reasoning, rationaleMax, "..."),
		})
	}

	SortRows(rows)
	return rows
}

// SortRows orders rows by id with a stable, total order
func SortRows(rows []model.ReportRow) {
	nums := make([]int64, len(rows))
	numeric := true
	for i, r := range rows {
		n, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = n
	}

	if numeric {
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return nums[idx[a]] < nums[idx[b]] })
		sorted := make([]model.ReportRow, len(rows))
		for i, j := range idx {
			sorted[i] = rows[j]
		}
		copy(rows, sorted)
		return
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].ID < rows[b].ID })
}

// Summarize counts predictions and verdicts over a report
func Summarize(rows []model.ReportRow, verdicts []model.Verdict) model.Summary {
	s := model.Summary{
		Total:     len(rows),
		ByVerdict: map[model.VerdictLabel]int{},
	}

	var confSum float64
	for _, r := range rows {
		if r.Prediction == 1 {
			s.PredictedPositive++
		} else {
			s.PredictedNegative++
		}
		s.ByVerdict[r.Verdict]++
		confSum += r.Confidence
	}
	if len(rows) > 0 {
		s.AverageConfidence = confSum / float64(len(rows))
	}

	for _, v := range verdicts {
		if v.Error {
			s.Errors++
		}
	}
	return s
}

// Evaluate compares predictions with the labels of labelled claims. A label of
// "consistent" counts as positive, anything else as negative.
func Evaluate(rows []model.ReportRow, claims []model.Claim) model.Evaluation {
	var e model.Evaluation

	labels := make(map[string]int)
	for _, c := range claims {
		if c.HasLabel() {
			labels[c.ClaimID] = c.LabelValue()
			e.Labelled++
		}
	}

	for _, r := range rows {
		want, ok := labels[r.ID]
		if !ok {
			continue
		}
		e.Compared++
		switch {
		case want == 1 && r.Prediction == 1:
			e.TruePositives++
		case want == 0 && r.Prediction == 0:
			e.TrueNegatives++
		case want == 0 && r.Prediction == 1:
			e.FalsePositives++
		default:
			e.FalseNegatives++
		}
		if want != r.Prediction {
			e.Mismatches = append(e.Mismatches, model.Mismatch{ID: r.ID, Expected: want, Prediction: r.Prediction})
		}
	}

	e.Accuracy = ratio(e.TruePositives+e.TrueNegatives, e.Compared)
	e.Precision = ratio(e.TruePositives, e.TruePositives+e.FalsePositives)
	e.Recall = ratio(e.TruePositives, e.TruePositives+e.FalseNegatives)
	if e.Precision+e.Recall > 0 {
		e.F1 = 2 * e.Precision * e.Recall / (e.Precision + e.Recall)
	}
	return e
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Build runs Aggregate, Summarize and, when any claim is labelled, Evaluate
func Build(verdicts []model.Verdict, claims []model.Claim, rationaleMax int) model.Report {
	rows := Aggregate(verdicts, claims, rationaleMax)
	report := model.Report{
		Rows:    rows,
		Summary: Summarize(rows, verdicts),
	}
	for _, c := range claims {
		if c.HasLabel() {
			eval := Evaluate(rows, claims)
			report.Evaluation = &eval
			break
		}
	}
	return report
}

package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ppiankov/veritas/internal/model"
)

// WriteCSV writes the report rows with a header line
func WriteCSV(w io.Writer, rows []model.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.ReportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID,
			r.BookName,
			r.Character,
			strconv.Itoa(r.Prediction),
			string(r.Verdict),
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			r.Rationale,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// SaveReport writes rows to csvPath and the summary/evaluation next to it as
// <name>.summary.json
func SaveReport(csvPath string, report model.Report) (summaryPath string, err error) {
	if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, report.Rows) }); err != nil {
		return "", err
	}

	summaryPath = csvPath[:len(csvPath)-len(filepath.Ext(csvPath))] + ".summary.json"
	summary := struct {
		Summary    model.Summary     `json:"summary"`
		Evaluation *model.Evaluation `json:"evaluation,omitempty"`
	}{report.Summary, report.Evaluation}
	if err := writeFile(summaryPath, func(w io.Writer) error { return WriteJSON(w, summary) }); err != nil {
		return "", err
	}
	return summaryPath, nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// PrintSummary renders the summary for a terminal
func PrintSummary(w io.Writer, report model.Report) {
	s := report.Summary
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total claims: %d\n", s.Total)
	fmt.Fprintf(w, "  Predicted consistent (1): %d\n", s.PredictedPositive)
	fmt.Fprintf(w, "  Predicted contradicted (0): %d\n", s.PredictedNegative)
	if s.Errors > 0 {
		fmt.Fprintf(w, "  Error verdicts: %d\n", s.Errors)
	}

	labels := make([]string, 0, len(s.ByVerdict))
	for v := range s.ByVerdict {
		labels = append(labels, string(v))
	}
	sort.Strings(labels)
	fmt.Fprintf(w, "\nVerdict breakdown:\n")
	for _, l := range labels {
		fmt.Fprintf(w, "  %s: %d\n", l, s.ByVerdict[model.VerdictLabel(l)])
	}
	fmt.Fprintf(w, "\nAverage confidence: %.2f%%\n", s.AverageConfidence*100)

	if e := report.Evaluation; e != nil {
		fmt.Fprintf(w, "\nEvaluation (%d of %d labelled claims):\n", e.Compared, e.Labelled)
		fmt.Fprintf(w, "  Accuracy:  %.2f%%\n", e.Accuracy*100)
		fmt.Fprintf(w, "  Precision: %.4f\n", e.Precision)
		fmt.Fprintf(w, "  Recall:    %.4f\n", e.Recall)
		fmt.Fprintf(w, "  F1:        %.4f\n", e.F1)
		fmt.Fprintf(w, "  TP=%d TN=%d FP=%d FN=%d\n", e.TruePositives, e.TrueNegatives, e.FalsePositives, e.FalseNegatives)
	}
}

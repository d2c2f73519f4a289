// Package claims ingests claim records from CSV and keeps the claim store
package claims

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/veritas/internal/jsonl"
	"github.com/ppiankov/veritas/internal/model"
)

// Column names of the claim CSV files
const (
	colID      = "id"
	colBook    = "book_name"
	colChar    = "char"
	colCaption = "caption"
	colContent = "content"
	colLabel   = "label"
)

var requiredColumns = []string{colID, colBook, colChar, colContent}

// ParseCSV reads claims from a CSV with a header row. origin is recorded as
// the claim's Source (e.g. "train", "test").
func ParseCSV(r io.Reader, origin string) ([]model.Claim, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty claim file", model.ErrValidation)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", model.ErrValidation, c)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var claims []model.Claim
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		claims = append(claims, model.Claim{
			ClaimID:   field(row, colID),
			BookName:  field(row, colBook),
			Character: field(row, colChar),
			Caption:   field(row, colCaption),
			ClaimText: field(row, colContent),
			Source:    origin,
			Label:     field(row, colLabel),
		})
	}
	return claims, nil
}

// ReadFiles parses every CSV in paths, skipping files that do not exist.
// Finding no file at all is model.ErrInputMissing.
func ReadFiles(paths []string, logger *slog.Logger) ([]model.Claim, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var all []model.Claim
	found := 0
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("claim file not found", "path", p)
				continue
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		found++

		origin := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		claims, err := ParseCSV(f, origin)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		logger.Info("parsed claims", "path", p, "count", len(claims))
		all = append(all, claims...)
	}

	if found == 0 {
		return nil, fmt.Errorf("%w: no claim files among %s", model.ErrInputMissing, strings.Join(paths, ", "))
	}
	return all, nil
}

// Validate rejects records no stage can key: an empty claim_id or a duplicate
// id. Field-level problems are left for Partition.
func Validate(claims []model.Claim) error {
	seen := make(map[string]int, len(claims))
	for i, c := range claims {
		if strings.TrimSpace(c.ClaimID) == "" {
			return fmt.Errorf("%w: record %d: claim_id is empty", model.ErrValidation, i)
		}
		if j, dup := seen[c.ClaimID]; dup {
			return fmt.Errorf("%w: duplicate claim_id %q (records %d and %d)", model.ErrValidation, c.ClaimID, j, i)
		}
		seen[c.ClaimID] = i
	}
	return nil
}

// Invalid is a claim that failed field validation
type Invalid struct {
	Claim model.Claim
	Err   error
}

// Partition splits claims into those every stage can use and those that
// degrade to an error verdict. Order is preserved in both.
func Partition(claims []model.Claim) ([]model.Claim, []Invalid) {
	valid := make([]model.Claim, 0, len(claims))
	var invalid []Invalid
	for _, c := range claims {
		if err := c.Validate(); err != nil {
			invalid = append(invalid, Invalid{Claim: c, Err: err})
			continue
		}
		valid = append(valid, c)
	}
	return valid, invalid
}

// Prepare readies parsed records for the claim store. Records without a
// claim_id are dropped and duplicate ids are fatal. Records with other
// missing fields are kept so they still get a verdict, and each is logged.
func Prepare(claims []model.Claim, logger *slog.Logger) ([]model.Claim, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kept := make([]model.Claim, 0, len(claims))
	for i, c := range claims {
		if strings.TrimSpace(c.ClaimID) == "" {
			logger.Warn("dropping claim without claim_id", "record", i, "source", c.Source)
			continue
		}
		kept = append(kept, c)
	}
	if err := Validate(kept); err != nil {
		return nil, err
	}

	_, invalid := Partition(kept)
	for _, inv := range invalid {
		logger.Warn("invalid claim, it will resolve as undetermined", "claim_id", inv.Claim.ClaimID, "error", inv.Err)
	}
	return kept, nil
}

// Save writes the claim store
func Save(path string, claims []model.Claim) error {
	return jsonl.Write(path, claims)
}

// Load reads the claim store and checks its ids
func Load(path string) ([]model.Claim, error) {
	claims, err := jsonl.Read[model.Claim](path)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	if err := Validate(claims); err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	return claims, nil
}

package pipeline

import (
	"fmt"
	"strings"
)

// Stage names one step of the pipeline
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageIndex     Stage = "index"
	StageClaims    Stage = "claims"
	StageRetrieve  Stage = "retrieve"
	StageReason    Stage = "reason"
	StageAggregate Stage = "aggregate"
)

// Stages lists the stages in execution order
var Stages = []Stage{StageIngest, StageIndex, StageClaims, StageRetrieve, StageReason, StageAggregate}

// ParseStage resolves a stage name, accepting a few aliases
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ingest", "ingestion", "segment":
		return StageIngest, nil
	case "index", "embed", "embedding":
		return StageIndex, nil
	case "claims", "parse":
		return StageClaims, nil
	case "retrieve", "retrieval":
		return StageRetrieve, nil
	case "reason", "reasoning":
		return StageReason, nil
	case "aggregate", "results":
		return StageAggregate, nil
	}
	return "", fmt.Errorf("unknown stage %q (stages: %s)", name, joinStages())
}

func (s Stage) position() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func joinStages() string {
	names := make([]string, len(Stages))
	for i, s := range Stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

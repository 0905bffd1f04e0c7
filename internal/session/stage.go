package session

import "fmt"

// Stage is one phase of the guided problem-solving flow.
type Stage string

const (
	StageProblemAnalysis   Stage = "problem_analysis"
	StageSolutionDesign    Stage = "solution_design"
	StageImplementation    Stage = "implementation"
	StageTestingRefinement Stage = "testing_refinement"
	StageReflection        Stage = "reflection"
)

// stages is the fixed order a session moves through.
var stages = [...]Stage{
	StageProblemAnalysis,
	StageSolutionDesign,
	StageImplementation,
	StageTestingRefinement,
	StageReflection,
}

var stageTitles = map[Stage]string{
	StageProblemAnalysis:   "Problem Analysis",
	StageSolutionDesign:    "Solution Design",
	StageImplementation:    "Implementation",
	StageTestingRefinement: "Testing & Refinement",
	StageReflection:        "Reflection",
}

var stageDescriptions = map[Stage]string{
	StageProblemAnalysis:   "Understand the problem, its inputs, outputs and constraints.",
	StageSolutionDesign:    "Choose an algorithm and the data structures it needs.",
	StageImplementation:    "Turn the design into working code.",
	StageTestingRefinement: "Probe edge cases and harden the solution.",
	StageReflection:        "Review what you learned and how the code could improve.",
}

// Stages returns the ordered stage sequence.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages[:])
	return out
}

// FirstStage returns the stage every session starts in.
func FirstStage() Stage { return stages[0] }

// LastStage returns the terminal stage.
func LastStage() Stage { return stages[len(stages)-1] }

// ParseStage converts a wire value into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Index returns the position of s in the sequence, or -1.
func (s Stage) Index() int {
	for i, st := range stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is part of the sequence.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// IsLast reports whether s is the final stage.
func (s Stage) IsLast() bool { return s == LastStage() }

// Next returns the stage after s. ok is false at the last stage or for an
// unknown stage.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.Index()
	if i < 0 || i >= len(stages)-1 {
		return "", false
	}
	return stages[i+1], true
}

// Title returns a human readable stage name.
func (s Stage) Title() string {
	if t, ok := stageTitles[s]; ok {
		return t
	}
	return string(s)
}

// Description returns a one-line summary of what happens in the stage.
func (s Stage) Description() string {
	return stageDescriptions[s]
}

func (s Stage) String() string { return string(s) }

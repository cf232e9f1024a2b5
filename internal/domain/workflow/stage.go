// Package workflow owns the seven-stage therapy workflow of a case: the current
// stage, the completed stages, and which role may complete each stage.
package workflow

import (
	"fmt"
	"sort"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Stage is one of the seven ordered steps of a therapy case.
type Stage int

const (
	StageHandwriting Stage = iota + 1
	StageTaskDefinition
	StageTaskScoring
	StageAssessment
	StageActivityAssignment
	StageActivityTracking
	StageFinalEvaluation
)

const (
	FirstStage = StageHandwriting
	LastStage  = StageFinalEvaluation
)

// AllStages lists the stages in order.
var AllStages = []Stage{
	StageHandwriting,
	StageTaskDefinition,
	StageTaskScoring,
	StageAssessment,
	StageActivityAssignment,
	StageActivityTracking,
	StageFinalEvaluation,
}

// IsValid reports whether the stage is within 1..7.
func (s Stage) IsValid() bool {
	return s >= FirstStage && s <= LastStage
}

// Int returns the stage number.
func (s Stage) Int() int { return int(s) }

// String returns a short name of the stage.
func (s Stage) String() string {
	switch s {
	case StageHandwriting:
		return "handwriting"
	case StageTaskDefinition:
		return "task-definition"
	case StageTaskScoring:
		return "task-scoring"
	case StageAssessment:
		return "assessment"
	case StageActivityAssignment:
		return "activity-assignment"
	case StageActivityTracking:
		return "activity-tracking"
	case StageFinalEvaluation:
		return "final-evaluation"
	default:
		return fmt.Sprintf("stage-%d", int(s))
	}
}

// RoleTable maps each stage to the roles allowed to complete it.
type RoleTable map[Stage][]shared.Role

// DefaultRoleTable returns the standard clinical role assignment.
func DefaultRoleTable() RoleTable {
	return RoleTable{
		StageHandwriting:        {shared.RoleTeacher},
		StageTaskDefinition:     {shared.RoleDoctor},
		StageTaskScoring:        {shared.RoleTeacher},
		StageAssessment:         {shared.RoleDoctor},
		StageActivityAssignment: {shared.RoleDoctor},
		StageActivityTracking:   {shared.RoleTeacher, shared.RoleParent},
		StageFinalEvaluation:    {shared.RoleDoctor},
	}
}

// Validate rejects a table that misses a stage, names an unknown stage,
// or names an unknown role.
func (t RoleTable) Validate() error {
	for s, roles := range t {
		if !s.IsValid() {
			return shared.Errorf("workflow", "ValidateRoleTable", shared.ErrInvalidInput, "unknown stage %d", int(s))
		}
		for _, r := range roles {
			if !r.IsValid() {
				return shared.Errorf("workflow", "ValidateRoleTable", shared.ErrInvalidInput, "stage %d names unknown role %q", int(s), r)
			}
		}
	}
	for _, s := range AllStages {
		if len(t[s]) == 0 {
			return shared.Errorf("workflow", "ValidateRoleTable", shared.ErrInvalidInput, "stage %d has no permitted role", int(s))
		}
	}
	return nil
}

// Permits reports whether role may complete stage.
func (t RoleTable) Permits(stage Stage, role shared.Role) bool {
	for _, r := range t[stage] {
		if r == role {
			return true
		}
	}
	return false
}

// NewRoleTable copies and validates a table.
func NewRoleTable(entries map[Stage][]shared.Role) (RoleTable, error) {
	t := make(RoleTable, len(entries))
	for s, roles := range entries {
		t[s] = append([]shared.Role(nil), roles...)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// StageSet is a sorted list of distinct stages.
type StageSet []Stage

// Contains reports whether s is in the set.
func (ss StageSet) Contains(s Stage) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Ints returns the stage numbers.
func (ss StageSet) Ints() []int {
	out := make([]int, len(ss))
	for i, s := range ss {
		out[i] = int(s)
	}
	return out
}

// StageSetOf builds a sorted set from stage numbers, dropping duplicates.
func StageSetOf(nums ...int) StageSet {
	seen := make(map[int]struct{}, len(nums))
	out := make(StageSet, 0, len(nums))
	for _, n := range nums {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, Stage(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

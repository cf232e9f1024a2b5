package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// StagePolicy is the YAML form of the stage completion role table:
//
//	stages:
//	  1: [teacher]
//	  2: [doctor]
//	  ...
type StagePolicy struct {
	Stages map[int][]string `yaml:"stages"`
}

// LoadRoleTable returns the default table when path is empty, otherwise the
// table read from the YAML file. Every stage must be listed.
func LoadRoleTable(path string) (workflow.RoleTable, error) {
	if path == "" {
		return workflow.DefaultRoleTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage policy: %w", err)
	}
	return ParseRoleTable(data)
}

// ParseRoleTable decodes and validates a YAML stage policy. Unknown keys are rejected.
func ParseRoleTable(data []byte) (workflow.RoleTable, error) {
	var p StagePolicy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse stage policy: %w", err)
	}

	entries := make(map[workflow.Stage][]shared.Role, len(p.Stages))
	for stage, names := range p.Stages {
		roles := make([]shared.Role, 0, len(names))
		for _, n := range names {
			r, err := shared.ParseRole(n)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", stage, err)
			}
			roles = append(roles, r)
		}
		entries[workflow.Stage(stage)] = roles
	}
	table, err := workflow.NewRoleTable(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid stage policy: %w", err)
	}
	return table, nil
}

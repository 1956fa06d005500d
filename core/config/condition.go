package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConditionKind discriminates a Condition's shape.
type ConditionKind string

const (
	CondAlways       ConditionKind = "always"
	CondFieldExists  ConditionKind = "fieldexists"
	CondFieldEquals  ConditionKind = "fieldequals"
	CondFieldMatches ConditionKind = "fieldmatches"
	CondHeaderExists ConditionKind = "headerexists"
	CondHeaderEquals ConditionKind = "headerequals"
	CondQueryExists  ConditionKind = "queryexists"
	CondQueryEquals  ConditionKind = "queryequals"
	CondAnd          ConditionKind = "and"
	CondOr           ConditionKind = "or"
	CondNot          ConditionKind = "not"
)

// Condition is the recursive tagged tree from spec.md §3: a pure predicate
// evaluated against a request's InterpolationContext to decide whether a
// subrequest is eligible to run.
type Condition struct {
	Kind ConditionKind

	Field   string // FieldExists/FieldEquals/FieldMatches
	Header  string // HeaderExists/HeaderEquals
	Param   string // QueryExists/QueryEquals
	Value   string // *Equals
	Pattern string // FieldMatches

	Conditions []Condition // And/Or
	Inner      *Condition  // Not
}

type rawCondition struct {
	Type       string      `yaml:"type"`
	Field      string      `yaml:"field"`
	Header     string      `yaml:"header"`
	Param      string      `yaml:"param"`
	Value      string      `yaml:"value"`
	Pattern    string      `yaml:"pattern"`
	Conditions []Condition `yaml:"conditions"`
	Condition  *Condition  `yaml:"condition"`
}

// UnmarshalYAML decodes the type-tagged Condition tree.
func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	var raw rawCondition
	if err := value.Decode(&raw); err != nil {
		return err
	}
	kind := ConditionKind(raw.Type)
	switch kind {
	case CondAlways, CondFieldExists, CondFieldEquals, CondFieldMatches,
		CondHeaderExists, CondHeaderEquals, CondQueryExists, CondQueryEquals,
		CondAnd, CondOr, CondNot:
	default:
		return fmt.Errorf("condition: unknown type %q", raw.Type)
	}
	*c = Condition{
		Kind:       kind,
		Field:      raw.Field,
		Header:     raw.Header,
		Param:      raw.Param,
		Value:      raw.Value,
		Pattern:    raw.Pattern,
		Conditions: raw.Conditions,
		Inner:      raw.Condition,
	}
	return nil
}

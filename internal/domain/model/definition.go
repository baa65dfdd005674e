package model

import "strings"

// FieldKind is the expected primitive of a positional field.
type FieldKind string

const (
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindString FieldKind = "string"
	KindTime   FieldKind = "time"
	KindEnum   FieldKind = "enum"
)

// Category selects the tracker payload variant of an event type.
type Category string

const (
	CategoryNone        Category = ""
	CategoryPoints      Category = "points"
	CategoryHitLevel    Category = "hit_level"
	CategoryWarning     Category = "warning"
	CategoryScore       Category = "score"
	CategoryRoundScore  Category = "round_score"
	CategoryClock       Category = "clock"
	CategoryRound       Category = "round"
	CategoryAthlete     Category = "athlete"
	CategoryMatchConfig Category = "match_config"
	CategoryInjury      Category = "injury"
	CategoryBreak       Category = "break"
	CategoryChallenge   Category = "challenge"
	CategoryWinner      Category = "winner"
	CategoryFightState  Category = "fight_state"
	CategoryConnection  Category = "connection"
)

// Categories lists every tracked category.
var Categories = []Category{
	CategoryPoints, CategoryHitLevel, CategoryWarning, CategoryScore, CategoryRoundScore,
	CategoryClock, CategoryRound, CategoryAthlete, CategoryMatchConfig, CategoryInjury,
	CategoryBreak, CategoryChallenge, CategoryWinner, CategoryFightState, CategoryConnection,
}

// Known reports whether c is empty or one of Categories.
func (c Category) Known() bool {
	if c == CategoryNone {
		return true
	}
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// FieldSpec is one positional field of an event schema.
type FieldSpec struct {
	Name   string    `json:"name"`
	Kind   FieldKind `json:"kind"`
	Values []string  `json:"values,omitempty"`
}

// EventTypeDefinition describes one event code for one protocol version.
// Definitions are immutable once loaded into a registry snapshot.
type EventTypeDefinition struct {
	Code            string      `json:"code"`
	ProtocolVersion string      `json:"protocol_version"`
	Introduced      string      `json:"introduced,omitempty"`
	Deprecated      bool        `json:"deprecated"`
	Category        Category    `json:"category,omitempty"`
	Athlete         int         `json:"athlete,omitempty"`
	Round           int         `json:"round,omitempty"`
	Description     string      `json:"description,omitempty"`
	Fields          []FieldSpec `json:"fields"`
}

// FieldIndex returns the position of the named field or -1.
func (d *EventTypeDefinition) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (d EventTypeDefinition) Clone() EventTypeDefinition {
	d.Fields = append([]FieldSpec(nil), d.Fields...)
	for i := range d.Fields {
		d.Fields[i].Values = append([]string(nil), d.Fields[i].Values...)
	}
	return d
}

// RuleKind enumerates validation rule kinds.
type RuleKind string

const (
	RuleRange    RuleKind = "range"
	RuleFormat   RuleKind = "format"
	RuleDataType RuleKind = "datatype"
	RuleRequired RuleKind = "required"
	RuleCustom   RuleKind = "custom"
)

// ParseRuleKind accepts the kind case-insensitively; "data_type" is an alias of datatype.
func ParseRuleKind(v string) (RuleKind, bool) {
	k := RuleKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "_", ""))
	switch k {
	case RuleRange, RuleFormat, RuleDataType, RuleRequired, RuleCustom:
		return k, true
	}
	return "", false
}

// RuleDefinition carries the kind-specific parameters of a rule.
type RuleDefinition struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Type      string   `json:"type,omitempty"`
	Predicate string   `json:"predicate,omitempty"`
	Values    []string `json:"values,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

// ValidationRule is keyed by (EventCode, ProtocolVersion, Name).
type ValidationRule struct {
	EventCode       string         `json:"event_code"`
	ProtocolVersion string         `json:"protocol_version"`
	Name            string         `json:"name"`
	Kind            RuleKind       `json:"kind"`
	Field           string         `json:"field,omitempty"`
	Definition      RuleDefinition `json:"definition"`
	ErrorMessage    string         `json:"error_message"`
	Active          bool           `json:"active"`
}

// RuleKey identifies a rule.
type RuleKey struct {
	EventCode       string
	ProtocolVersion string
	Name            string
}

// Key returns the rule's identity.
func (r ValidationRule) Key() RuleKey {
	return RuleKey{EventCode: r.EventCode, ProtocolVersion: r.ProtocolVersion, Name: r.Name}
}

// Float is a helper for building range bounds.
func Float(v float64) *float64 { return &v }

// Package registry holds the versioned event grammar and validation rules.
//
// A Snapshot is immutable. The Registry swaps one atomic pointer on reload so
// parsing and validation always observe a single consistent snapshot.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/rules"
)

// DefaultDelimiter separates PSS fields.
const DefaultDelimiter = ";"

// Key identifies an event type.
type Key struct {
	Code    string
	Version string
}

// Entry is one schema plus the compiled, active rules that apply to it.
type Entry struct {
	Definition model.EventTypeDefinition
	Rules      []model.ValidationRule
	Checks     []*rules.Check
}

// Snapshot is an immutable view of the grammar.
type Snapshot struct {
	Generation uint64
	LoadedAt   time.Time
	// Warnings lists rules and definitions skipped while building.
	Warnings []string

	delimiters map[string]string
	entries    map[Key]*Entry
}

// Lookup returns the entry for (code, version).
func (s *Snapshot) Lookup(code, version string) (*Entry, bool) {
	e, ok := s.entries[Key{Code: code, Version: version}]
	return e, ok
}

// Delimiter returns the field delimiter of a protocol version.
func (s *Snapshot) Delimiter(version string) string {
	if d, ok := s.delimiters[version]; ok && d != "" {
		return d
	}
	return DefaultDelimiter
}

// Versions returns the known protocol versions, sorted.
func (s *Snapshot) Versions() []string {
	out := make([]string, 0, len(s.delimiters))
	for v := range s.delimiters {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Entries returns the entries of a version ordered by code.
func (s *Snapshot) Entries(version string) []*Entry {
	var out []*Entry
	for k, e := range s.entries {
		if k.Version == version {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Definition.Code < out[j].Definition.Code })
	return out
}

// Len is the total number of definitions across versions.
func (s *Snapshot) Len() int { return len(s.entries) }

// Bundle is what a Source contributes to a snapshot.
type Bundle struct {
	// Protocols maps version to delimiter.
	Protocols   map[string]string
	Definitions []model.EventTypeDefinition
	Rules       []model.ValidationRule
}

// build merges bundles in order. Later definitions replace earlier ones with
// the same key and later rules replace earlier rules with the same RuleKey;
// an inactive rule removes the earlier one.
func build(gen uint64, now time.Time, bundles []Bundle) (*Snapshot, error) {
	s := &Snapshot{
		Generation: gen,
		LoadedAt:   now,
		delimiters: map[string]string{},
		entries:    map[Key]*Entry{},
	}

	var ruleOrder []model.RuleKey
	ruleSet := map[model.RuleKey]model.ValidationRule{}
	for _, b := range bundles {
		for v, d := range b.Protocols {
			s.delimiters[v] = d
		}
		for _, d := range b.Definitions {
			if d.Code == "" || d.ProtocolVersion == "" {
				s.Warnings = append(s.Warnings, fmt.Sprintf("definition without code or version skipped: %+v", d))
				continue
			}
			if !d.Category.Known() {
				s.Warnings = append(s.Warnings, fmt.Sprintf("%s@%s: unknown category %q, tracking disabled", d.Code, d.ProtocolVersion, d.Category))
				d.Category = model.CategoryNone
			}
			if _, ok := s.delimiters[d.ProtocolVersion]; !ok {
				s.delimiters[d.ProtocolVersion] = DefaultDelimiter
			}
			s.entries[Key{Code: d.Code, Version: d.ProtocolVersion}] = &Entry{Definition: d.Clone()}
		}
		for _, r := range b.Rules {
			k := r.Key()
			if _, seen := ruleSet[k]; !seen {
				ruleOrder = append(ruleOrder, k)
			}
			ruleSet[k] = r
		}
	}
	if len(s.entries) == 0 {
		return nil, ErrEmptySchema
	}

	for _, k := range ruleOrder {
		r := ruleSet[k]
		if !r.Active {
			continue
		}
		e, ok := s.entries[Key{Code: r.EventCode, Version: r.ProtocolVersion}]
		if !ok {
			s.Warnings = append(s.Warnings, fmt.Sprintf("rule %s for unknown event %s@%s skipped", r.Name, r.EventCode, r.ProtocolVersion))
			continue
		}
		c, err := rules.Compile(r, &e.Definition)
		if err != nil {
			s.Warnings = append(s.Warnings, err.Error())
			continue
		}
		e.Rules = append(e.Rules, r)
		e.Checks = append(e.Checks, c)
	}
	return s, nil
}

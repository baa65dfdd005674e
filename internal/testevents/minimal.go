package testevents

import (
	"strconv"

	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

// MinimalValues returns the smallest field values that satisfy every rule of entry.
func MinimalValues(entry *registry.Entry) []model.FieldValue {
	out := make([]model.FieldValue, 0, len(entry.Definition.Fields))
	for _, f := range entry.Definition.Fields {
		out = append(out, model.FieldValue{Name: f.Name, Value: minimalValue(f, entry.Rules)})
	}
	return out
}

// Minimal returns a datagram for entry that classifies as Recognized (or
// Deprecated for deprecated schemas) with confidence 1.
func Minimal(entry *registry.Entry, delim string) string {
	return grammar.Serialize(&entry.Definition, MinimalValues(entry), nil, delim)
}

func minimalValue(f model.FieldSpec, rs []model.ValidationRule) string {
	byKind := map[model.RuleKind]model.ValidationRule{}
	for _, r := range rs {
		if r.Field == f.Name {
			if r.Kind == model.RuleCustom {
				switch r.Definition.Predicate {
				case "one_of":
					return r.Definition.Values[0]
				case "athlete_number":
					return "1"
				case "positive_duration":
					return "1:00"
				}
			}
			byKind[r.Kind] = r
		}
	}
	if r, ok := byKind[model.RuleRange]; ok && r.Definition.Min != nil {
		return strconv.FormatFloat(*r.Definition.Min, 'f', -1, 64)
	}
	if r, ok := byKind[model.RuleFormat]; ok {
		switch r.Definition.Pattern {
		case "m:ss", "time":
			return "1:00"
		case "digit", "int":
			return "1"
		case "ioc":
			return "KOR"
		}
	}
	switch f.Kind {
	case model.KindInt, model.KindFloat:
		return "1"
	case model.KindTime:
		return "1:00"
	case model.KindEnum:
		if len(f.Values) > 0 {
			return f.Values[0]
		}
	}
	return "A"
}

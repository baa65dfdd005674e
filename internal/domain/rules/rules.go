// Package rules compiles ValidationRules into pure checks over a ParsedEvent.
//
// Value checks (range, format, datatype and single-field predicates) only
// apply to fields with a non-empty value; presence is the job of required
// rules.
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/pss/internal/domain/model"
)

// Named formats accepted by format rules in place of a regular expression.
var namedFormats = map[string]string{
	"m:ss":  `\d{1,2}:[0-5]\d`,
	"time":  `\d{1,2}:[0-5]\d`,
	"digit": `\d`,
	"int":   `-?\d+`,
	"alpha": `[A-Za-z]+`,
	"ioc":   `[A-Z]{3}`,
}

// maxDuration bounds positive_duration when the rule sets no max: one hour.
const maxDuration = 3600

// Check is one compiled rule. It is safe for concurrent use.
type Check struct {
	Name    string
	Kind    model.RuleKind
	Field   string
	Message string
	test    func(ev *model.ParsedEvent) bool
}

// Apply runs the check. ok is false when the rule failed, in which case the
// returned ValidationError describes the failure.
func (c *Check) Apply(ev *model.ParsedEvent) (model.ValidationError, bool) {
	if c.test(ev) {
		return model.ValidationError{}, true
	}
	return model.ValidationError{Rule: c.Name, Kind: c.Kind, Field: c.Field, Message: c.Message}, false
}

// Compile turns a rule into a Check. def may be nil; when set, the rule's
// fields must exist in it.
func Compile(r model.ValidationRule, def *model.EventTypeDefinition) (*Check, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: rule for %s has no name", ErrInvalidRule, r.EventCode)
	}
	fields := r.Definition.Fields
	if r.Field != "" {
		fields = append([]string{r.Field}, fields...)
	}
	if def != nil {
		for _, f := range fields {
			if def.FieldIndex(f) < 0 {
				return nil, fmt.Errorf("%w: %s/%s references unknown field %q", ErrInvalidRule, r.EventCode, r.Name, f)
			}
		}
	}

	c := &Check{Name: r.Name, Kind: r.Kind, Field: r.Field, Message: r.ErrorMessage}
	if c.Message == "" {
		c.Message = fmt.Sprintf("%s failed", r.Name)
	}

	var err error
	switch r.Kind {
	case model.RuleRequired:
		c.test, err = required(r)
	case model.RuleRange:
		c.test, err = rangeCheck(r)
	case model.RuleFormat:
		c.test, err = formatCheck(r)
	case model.RuleDataType:
		c.test, err = dataTypeCheck(r, def)
	case model.RuleCustom:
		c.test, err = custom(r)
	default:
		err = fmt.Errorf("%w: %s/%s has kind %q", ErrInvalidRule, r.EventCode, r.Name, r.Kind)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func needField(r model.ValidationRule) error {
	if r.Field == "" {
		return fmt.Errorf("%w: %s/%s needs a field", ErrInvalidRule, r.EventCode, r.Name)
	}
	return nil
}

// valued wraps a single-field test so that absent or empty values pass.
func valued(field string, fn func(v string) bool) func(*model.ParsedEvent) bool {
	return func(ev *model.ParsedEvent) bool {
		v, ok := ev.Field(field)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return true
		}
		return fn(v)
	}
}

func required(r model.ValidationRule) (func(*model.ParsedEvent) bool, error) {
	if err := needField(r); err != nil {
		return nil, err
	}
	return func(ev *model.ParsedEvent) bool {
		v, ok := ev.Field(r.Field)
		return ok && strings.TrimSpace(v) != ""
	}, nil
}

func rangeCheck(r model.ValidationRule) (func(*model.ParsedEvent) bool, error) {
	if err := needField(r); err != nil {
		return nil, err
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if r.Definition.Min != nil {
		lo = *r.Definition.Min
	}
	if r.Definition.Max != nil {
		hi = *r.Definition.Max
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: %s/%s min > max", ErrInvalidRule, r.EventCode, r.Name)
	}
	return valued(r.Field, func(v string) bool {
		n, err := strconv.ParseFloat(v, 64)
		return err == nil && n >= lo && n <= hi
	}), nil
}

func formatCheck(r model.ValidationRule) (func(*model.ParsedEvent) bool, error) {
	if err := needField(r); err != nil {
		return nil, err
	}
	pattern := r.Definition.Pattern
	if named, ok := namedFormats[pattern]; ok {
		pattern = named
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: %s/%s has no pattern", ErrInvalidRule, r.EventCode, r.Name)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidRule, r.EventCode, r.Name, err)
	}
	return valued(r.Field, re.MatchString), nil
}

func dataTypeCheck(r model.ValidationRule, def *model.EventTypeDefinition) (func(*model.ParsedEvent) bool, error) {
	if err := needField(r); err != nil {
		return nil, err
	}
	typ := r.Definition.Type
	if typ == "" && def != nil {
		typ = string(def.Fields[def.FieldIndex(r.Field)].Kind)
	}
	var fn func(string) bool
	switch strings.ToLower(typ) {
	case "int", "integer":
		fn = func(v string) bool { _, err := strconv.Atoi(v); return err == nil }
	case "float", "number":
		fn = func(v string) bool { _, err := strconv.ParseFloat(v, 64); return err == nil }
	case "bool", "boolean":
		fn = func(v string) bool { _, err := strconv.ParseBool(v); return err == nil }
	case "time":
		fn = func(v string) bool { _, err := model.ParseClock(v); return err == nil }
	case "string", "enum":
		fn = func(string) bool { return true }
	default:
		return nil, fmt.Errorf("%w: %s/%s has type %q", ErrInvalidRule, r.EventCode, r.Name, typ)
	}
	return valued(r.Field, fn), nil
}

func custom(r model.ValidationRule) (func(*model.ParsedEvent) bool, error) {
	d := r.Definition
	switch d.Predicate {
	case "athlete_number":
		if err := needField(r); err != nil {
			return nil, err
		}
		return valued(r.Field, func(v string) bool { return v == "1" || v == "2" }), nil
	case "one_of":
		if err := needField(r); err != nil {
			return nil, err
		}
		if len(d.Values) == 0 {
			return nil, fmt.Errorf("%w: %s/%s one_of has no values", ErrInvalidRule, r.EventCode, r.Name)
		}
		allowed := make(map[string]struct{}, len(d.Values))
		for _, v := range d.Values {
			allowed[strings.ToLower(v)] = struct{}{}
		}
		return valued(r.Field, func(v string) bool {
			_, ok := allowed[strings.ToLower(v)]
			return ok
		}), nil
	case "positive_duration":
		if err := needField(r); err != nil {
			return nil, err
		}
		limit := float64(maxDuration)
		if d.Max != nil {
			limit = *d.Max
		}
		return valued(r.Field, func(v string) bool {
			secs, ok := seconds(v)
			return ok && secs > 0 && float64(secs) <= limit
		}), nil
	case "any_present":
		if len(d.Fields) == 0 {
			return nil, fmt.Errorf("%w: %s/%s any_present has no fields", ErrInvalidRule, r.EventCode, r.Name)
		}
		return func(ev *model.ParsedEvent) bool {
			for _, f := range d.Fields {
				if v, ok := ev.Field(f); ok && strings.TrimSpace(v) != "" {
					return true
				}
			}
			return false
		}, nil
	case "not_after":
		if len(d.Fields) != 2 {
			return nil, fmt.Errorf("%w: %s/%s not_after needs two fields", ErrInvalidRule, r.EventCode, r.Name)
		}
		return func(ev *model.ParsedEvent) bool {
			a, okA := ev.Field(d.Fields[0])
			b, okB := ev.Field(d.Fields[1])
			if !okA || !okB || a == "" || b == "" {
				return true
			}
			sa, okA := seconds(a)
			sb, okB := seconds(b)
			return okA && okB && sa <= sb
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q in %s/%s", ErrUnknownPredicate, d.Predicate, r.EventCode, r.Name)
	}
}

// seconds accepts m:ss or a bare number of seconds.
func seconds(v string) (int, bool) {
	if c, err := model.ParseClock(v); err == nil {
		return int(c), true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

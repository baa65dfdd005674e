// Package validation classifies parsed events against their schema's rules.
package validation

import (
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

// Result is a classification outcome.
type Result struct {
	Status     model.RecognitionStatus
	Confidence float64
	Errors     []model.ValidationError
}

// Classify runs every compiled rule of entry against ev, independent of one
// another, and applies the decision table:
//
//  1. no schema                 -> Unknown, confidence 0, no errors
//  2. deprecated schema         -> Deprecated (rules still reported)
//  3. schema, no rule failures  -> Recognized
//  4. schema, some failures     -> Partial
//
// Deprecated takes precedence over Partial. With no rules confidence is 1.
// Classify has no side effects.
func Classify(ev *model.ParsedEvent, entry *registry.Entry) Result {
	if entry == nil {
		return Result{Status: model.StatusUnknown, Confidence: 0}
	}

	var errs []model.ValidationError
	for _, c := range entry.Checks {
		if verr, ok := c.Apply(ev); !ok {
			errs = append(errs, verr)
		}
	}

	res := Result{Errors: errs, Confidence: confidence(len(errs), len(entry.Checks))}
	switch {
	case entry.Definition.Deprecated:
		res.Status = model.StatusDeprecated
	case len(errs) == 0:
		res.Status = model.StatusRecognized
	default:
		res.Status = model.StatusPartial
	}
	return res
}

// Apply classifies ev and stores the outcome on it.
func Apply(ev *model.ParsedEvent, entry *registry.Entry) Result {
	res := Classify(ev, entry)
	ev.Status = res.Status
	ev.Confidence = res.Confidence
	ev.Errors = res.Errors
	return res
}

func confidence(failed, total int) float64 {
	if total == 0 {
		return 1
	}
	c := 1 - float64(failed)/float64(total)
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

package registry

import (
	"context"
	"fmt"

	"github.com/okian/pss/internal/domain/model"
)

type field = model.FieldSpec

func intField(name string) field  { return field{Name: name, Kind: model.KindInt} }
func strField(name string) field  { return field{Name: name, Kind: model.KindString} }
func timeField(name string) field { return field{Name: name, Kind: model.KindTime} }
func enumField(name string, values ...string) field {
	return field{Name: name, Kind: model.KindEnum, Values: values}
}

type ruleSpec struct {
	name, kind, field, msg string
	def                    model.RuleDefinition
}

func requiredRule(f string) ruleSpec {
	return ruleSpec{name: f + "_required", kind: "required", field: f, msg: f + " is required"}
}

func rangeRule(f string, lo, hi float64) ruleSpec {
	return ruleSpec{name: f + "_range", kind: "range", field: f,
		msg: fmt.Sprintf("%s must be between %g and %g", f, lo, hi),
		def: model.RuleDefinition{Min: model.Float(lo), Max: model.Float(hi)}}
}

func clockRule(f string) ruleSpec {
	return ruleSpec{name: f + "_format", kind: "format", field: f, msg: f + " must be m:ss",
		def: model.RuleDefinition{Pattern: "m:ss"}}
}

func oneOfRule(f string, values ...string) ruleSpec {
	return ruleSpec{name: f + "_enum", kind: "custom", field: f, msg: fmt.Sprintf("%s must be one of %v", f, values),
		def: model.RuleDefinition{Predicate: "one_of", Values: values}}
}

type eventSpec struct {
	code     string
	category model.Category
	athlete  int
	round    int
	since    string
	desc     string
	fields   []field
	rules    []ruleSpec
}

func perAthlete(prefix string, cat model.Category, desc string, fields []field, rs ...ruleSpec) []eventSpec {
	return []eventSpec{
		{code: prefix + "1", category: cat, athlete: 1, desc: desc + " (athlete 1)", fields: fields, rules: rs},
		{code: prefix + "2", category: cat, athlete: 2, desc: desc + " (athlete 2)", fields: fields, rules: rs},
	}
}

// builtinEvents is the PSS grammar shipped with the engine.
func builtinEvents() []eventSpec {
	var ev []eventSpec
	ev = append(ev, perAthlete("pt", model.CategoryPoints, "Points scored",
		[]field{intField("point_type")}, requiredRule("point_type"), rangeRule("point_type", 1, 5))...)
	ev = append(ev, perAthlete("hl", model.CategoryHitLevel, "Hit level",
		[]field{intField("level")}, requiredRule("level"), rangeRule("level", 0, 100))...)
	ev = append(ev, perAthlete("wg", model.CategoryWarning, "Warnings (gam-jeom)",
		[]field{intField("count")}, requiredRule("count"), rangeRule("count", 0, 10))...)
	ev = append(ev, perAthlete("sc", model.CategoryScore, "Live score",
		[]field{intField("score")}, requiredRule("score"), rangeRule("score", 0, 999))...)
	for a := 1; a <= 2; a++ {
		for r := 1; r <= 3; r++ {
			ev = append(ev, eventSpec{
				code: fmt.Sprintf("s%d%d", a, r), category: model.CategoryRoundScore, athlete: a, round: r,
				desc:   fmt.Sprintf("Round %d score (athlete %d)", r, a),
				fields: []field{intField("score")},
				rules:  []ruleSpec{requiredRule("score"), rangeRule("score", 0, 999)},
			})
		}
	}
	ev = append(ev,
		eventSpec{code: "clk", category: model.CategoryClock, desc: "Match clock",
			fields: []field{timeField("time"), enumField("action", "start", "stop")},
			rules:  []ruleSpec{requiredRule("time"), clockRule("time"), oneOfRule("action", "start", "stop")}},
		eventSpec{code: "rnd", category: model.CategoryRound, desc: "Round change",
			fields: []field{intField("round")},
			rules:  []ruleSpec{requiredRule("round"), rangeRule("round", 1, 10)}},
	)
	ev = append(ev, perAthlete("at", model.CategoryAthlete, "Athlete identity",
		[]field{strField("short_name"), strField("long_name"), strField("country")},
		ruleSpec{name: "name_present", kind: "custom", msg: "athlete needs a short or long name",
			def: model.RuleDefinition{Predicate: "any_present", Fields: []string{"short_name", "long_name"}}},
		ruleSpec{name: "country_format", kind: "format", field: "country", msg: "country must be a 3 letter code",
			def: model.RuleDefinition{Pattern: "ioc"}})...)
	ev = append(ev,
		eventSpec{code: "mch", category: model.CategoryMatchConfig, desc: "Match configuration",
			fields: []field{strField("match_number"), strField("category"), strField("weight"),
				intField("rounds"), timeField("round_duration"), strField("countdown_type")},
			rules: []ruleSpec{
				requiredRule("match_number"),
				rangeRule("rounds", 1, 10),
				{name: "round_duration_plausible", kind: "custom", field: "round_duration",
					msg: "round duration must be a positive m:ss up to 10:00",
					def: model.RuleDefinition{Predicate: "positive_duration", Max: model.Float(600)}},
			}},
	)
	ev = append(ev, perAthlete("ij", model.CategoryInjury, "Injury time",
		[]field{timeField("time"), enumField("action", "show", "hide", "reset")},
		clockRule("time"), oneOfRule("action", "show", "hide", "reset"))...)
	ev = append(ev,
		eventSpec{code: "brk", category: model.CategoryBreak, desc: "Break between rounds",
			fields: []field{timeField("time"), enumField("action", "start", "stop")},
			rules:  []ruleSpec{clockRule("time"), oneOfRule("action", "start", "stop")}},
	)
	ev = append(ev, perAthlete("ch", model.CategoryChallenge, "Video replay challenge",
		[]field{enumField("outcome", "-1", "0", "1")}, oneOfRule("outcome", "-1", "0", "1"))...)
	ev = append(ev,
		eventSpec{code: "win", category: model.CategoryWinner, desc: "Winner announcement",
			fields: []field{intField("athlete"), strField("reason")},
			rules: []ruleSpec{
				requiredRule("athlete"),
				{name: "athlete_number", kind: "custom", field: "athlete", msg: "winner must be athlete 1 or 2",
					def: model.RuleDefinition{Predicate: "athlete_number"}},
				oneOfRule("reason", "PTF", "PTG", "GDP", "SUP", "WDR", "DSQ", "PUN", "RSC", "DQB"),
			}},
		eventSpec{code: "pre", category: model.CategoryFightState, desc: "Fight preparation state",
			fields: []field{strField("state")}, rules: []ruleSpec{requiredRule("state")}},
		eventSpec{code: "rdy", category: model.CategoryFightState, desc: "Fight ready state",
			fields: []field{strField("state")}, rules: []ruleSpec{requiredRule("state")}},
		eventSpec{code: model.CodeConnected, category: model.CategoryConnection, desc: "Scoring hardware connected"},
		eventSpec{code: model.CodeDisconnected, category: model.CategoryConnection, desc: "Scoring hardware disconnected"},
		eventSpec{code: "avt", since: "2.0", desc: "Legacy average time",
			fields: []field{strField("value")}},
	)
	return ev
}

// v22Codes are the codes protocol 2.2 already carried.
var v22Codes = map[string]bool{
	"pt1": true, "pt2": true, "wg1": true, "wg2": true, "sc1": true, "sc2": true,
	"clk": true, "rnd": true, "at1": true, "at2": true, "win": true, "pre": true, "avt": true,
	model.CodeConnected: true, model.CodeDisconnected: true,
}

func expand(version string, specs []eventSpec, deprecated map[string]bool) ([]model.EventTypeDefinition, []model.ValidationRule) {
	var defs []model.EventTypeDefinition
	var rs []model.ValidationRule
	for _, s := range specs {
		since := s.since
		if since == "" {
			since = "2.2"
			if !v22Codes[s.code] {
				since = "2.3"
			}
		}
		defs = append(defs, model.EventTypeDefinition{
			Code: s.code, ProtocolVersion: version, Introduced: since, Deprecated: deprecated[s.code],
			Category: s.category, Athlete: s.athlete, Round: s.round, Description: s.desc,
			Fields: append([]field(nil), s.fields...),
		})
		for _, r := range s.rules {
			kind, _ := model.ParseRuleKind(r.kind)
			rs = append(rs, model.ValidationRule{
				EventCode: s.code, ProtocolVersion: version, Name: r.name, Kind: kind, Field: r.field,
				Definition: r.def, ErrorMessage: r.msg, Active: true,
			})
		}
	}
	return defs, rs
}

// DefaultSource serves the built-in grammar for protocols 2.3 and 2.2.
type DefaultSource struct{}

// Name implements Source.
func (DefaultSource) Name() string { return "builtin" }

// Load implements Source.
func (DefaultSource) Load(_ context.Context) (Bundle, error) {
	all := builtinEvents()
	defs, rs := expand("2.3", all, map[string]bool{"avt": true})

	var legacy []eventSpec
	for _, s := range all {
		if v22Codes[s.code] {
			legacy = append(legacy, s)
		}
	}
	d22, r22 := expand("2.2", legacy, nil)

	return Bundle{
		Protocols:   map[string]string{"2.3": DefaultDelimiter, "2.2": DefaultDelimiter},
		Definitions: append(defs, d22...),
		Rules:       append(rs, r22...),
	}, nil
}

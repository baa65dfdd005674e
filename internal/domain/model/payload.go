package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Payload is the typed body of a tracked event. The concrete type is selected
// by the definition's Category; see DecodePayload.
type Payload interface {
	Category() Category
}

// ClockAction is the optional second field of clock, injury and break events.
type ClockAction string

const (
	ClockTick  ClockAction = ""
	ClockStart ClockAction = "start"
	ClockStop  ClockAction = "stop"
)

type (
	PointsPayload struct {
		Athlete   int
		PointType int
	}
	HitLevelPayload struct {
		Athlete int
		Level   int
	}
	WarningPayload struct {
		Athlete int
		Count   int
	}
	ScorePayload struct {
		Athlete int
		Score   int
	}
	RoundScorePayload struct {
		Athlete int
		Round   int
		Score   int
	}
	ClockPayload struct {
		Time   ClockTime
		Action ClockAction
	}
	RoundPayload struct {
		Round int
	}
	AthletePayload struct {
		Athlete int
		Info    AthleteInfo
	}
	MatchConfigPayload struct {
		Config MatchConfig
	}
	InjuryPayload struct {
		Athlete int
		Time    *ClockTime
		Action  string
	}
	BreakPayload struct {
		Time   *ClockTime
		Action ClockAction
	}
	ChallengePayload struct {
		Athlete int
		// Outcome is nil for a raised challenge, otherwise -1 canceled, 0 rejected, 1 accepted.
		Outcome *int
	}
	WinnerPayload struct {
		Athlete int
		Reason  string
	}
	FightStatePayload struct {
		State string
	}
	ConnectionPayload struct {
		Connected bool
	}
)

func (PointsPayload) Category() Category      { return CategoryPoints }
func (HitLevelPayload) Category() Category    { return CategoryHitLevel }
func (WarningPayload) Category() Category     { return CategoryWarning }
func (ScorePayload) Category() Category       { return CategoryScore }
func (RoundScorePayload) Category() Category  { return CategoryRoundScore }
func (ClockPayload) Category() Category       { return CategoryClock }
func (RoundPayload) Category() Category       { return CategoryRound }
func (AthletePayload) Category() Category     { return CategoryAthlete }
func (MatchConfigPayload) Category() Category { return CategoryMatchConfig }
func (InjuryPayload) Category() Category      { return CategoryInjury }
func (BreakPayload) Category() Category       { return CategoryBreak }
func (ChallengePayload) Category() Category   { return CategoryChallenge }
func (WinnerPayload) Category() Category      { return CategoryWinner }
func (FightStatePayload) Category() Category  { return CategoryFightState }
func (ConnectionPayload) Category() Category  { return CategoryConnection }

// DecodePayload builds the typed payload of an event. It returns ErrNoPayload
// for untracked categories and ErrBadPayload when a field the variant needs is
// missing or malformed.
func DecodePayload(ev *ParsedEvent) (Payload, error) {
	d := decoder{ev: ev}
	var p Payload
	switch ev.Category {
	case CategoryNone:
		return nil, ErrNoPayload
	case CategoryPoints:
		p = PointsPayload{Athlete: d.athlete(), PointType: d.num("point_type")}
	case CategoryHitLevel:
		p = HitLevelPayload{Athlete: d.athlete(), Level: d.num("level")}
	case CategoryWarning:
		p = WarningPayload{Athlete: d.athlete(), Count: d.num("count")}
	case CategoryScore:
		p = ScorePayload{Athlete: d.athlete(), Score: d.num("score")}
	case CategoryRoundScore:
		if ev.Round < 1 {
			return nil, fmt.Errorf("%w: %s has no round", ErrBadPayload, ev.EventCode)
		}
		p = RoundScorePayload{Athlete: d.athlete(), Round: ev.Round, Score: d.num("score")}
	case CategoryClock:
		p = ClockPayload{Time: d.clock("time"), Action: d.action("action")}
	case CategoryRound:
		p = RoundPayload{Round: d.num("round")}
	case CategoryAthlete:
		p = AthletePayload{Athlete: d.athlete(), Info: AthleteInfo{
			ShortName: d.str("short_name"),
			LongName:  d.str("long_name"),
			Country:   d.str("country"),
		}}
	case CategoryMatchConfig:
		p = MatchConfigPayload{Config: MatchConfig{
			Number:        d.str("match_number"),
			Category:      d.str("category"),
			Weight:        d.str("weight"),
			Rounds:        d.optInt("rounds"),
			RoundDuration: d.optClock("round_duration"),
			CountdownType: d.str("countdown_type"),
		}}
	case CategoryInjury:
		p = InjuryPayload{Athlete: d.athlete(), Time: d.optClock("time"), Action: d.str("action")}
	case CategoryBreak:
		p = BreakPayload{Time: d.optClock("time"), Action: d.action("action")}
	case CategoryChallenge:
		p = ChallengePayload{Athlete: d.athlete(), Outcome: d.optInt("outcome")}
	case CategoryWinner:
		p = WinnerPayload{Athlete: d.num("athlete"), Reason: d.str("reason")}
	case CategoryFightState:
		p = FightStatePayload{State: d.str("state")}
	case CategoryConnection:
		p = ConnectionPayload{Connected: ev.EventCode != CodeDisconnected}
	default:
		return nil, fmt.Errorf("%w: category %q", ErrBadPayload, ev.Category)
	}
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// decoder records the first failure so variants can be built in one expression.
type decoder struct {
	ev  *ParsedEvent
	err error
}

func (d *decoder) fail(field, v string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s.%s=%q", ErrBadPayload, d.ev.EventCode, field, v)
	}
}

func (d *decoder) athlete() int {
	if d.ev.Athlete != 1 && d.ev.Athlete != 2 {
		d.fail("athlete", strconv.Itoa(d.ev.Athlete))
	}
	return d.ev.Athlete
}

func (d *decoder) str(name string) string {
	v, _ := d.ev.Field(name)
	return strings.TrimSpace(v)
}

func (d *decoder) num(name string) int {
	v, _ := d.ev.Field(name)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		d.fail(name, v)
	}
	return n
}

func (d *decoder) optInt(name string) *int {
	v, ok := d.ev.Field(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n := d.num(name)
	return &n
}

func (d *decoder) clock(name string) ClockTime {
	v, _ := d.ev.Field(name)
	c, err := ParseClock(strings.TrimSpace(v))
	if err != nil {
		d.fail(name, v)
	}
	return c
}

func (d *decoder) optClock(name string) *ClockTime {
	v, ok := d.ev.Field(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	c := d.clock(name)
	return &c
}

func (d *decoder) action(name string) ClockAction {
	switch a := ClockAction(strings.ToLower(d.str(name))); a {
	case ClockTick, ClockStart, ClockStop:
		return a
	default:
		d.fail(name, string(a))
		return a
	}
}

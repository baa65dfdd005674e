// Package matchstate maintains live match state from classified events.
//
// Every category has one applier. Appliers never move ordinal state
// backwards (round, warnings, scores); only a reset does that. The tracker
// also watches the clock-stopped window for signs of a manual override.
package matchstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

const (
	defaultBufferSize = 128
	defaultHitHistory = 32
	defaultResetState = "FightLoaded"
)

// Tracker is safe for concurrent use; each update holds the lock only for
// the duration of one applier.
type Tracker struct {
	mu    sync.Mutex
	state model.MatchState
	// windowEvents counts events seen since the window opened, independent of buffer eviction.
	windowEvents int

	bufferSize int
	hitHistory int
	resetState string
	publish    func(model.MatchDelta)
	log        logger.Logger
}

// New creates a tracker with empty state.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		bufferSize: defaultBufferSize,
		hitHistory: defaultHitHistory,
		resetState: defaultResetState,
		publish:    func(model.MatchDelta) {},
		log:        logger.Get().Named("matchstate"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() model.MatchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Reset clears the state for a new match.
func (t *Tracker) Reset() model.MatchDelta {
	t.mu.Lock()
	t.resetLocked()
	d := model.MatchDelta{Reset: true, Changed: []string{"*"}, State: t.state.Clone(), At: time.Now()}
	t.mu.Unlock()

	metrics.UpdateOverrideActive(false)
	t.publish(d)
	return d
}

func (t *Tracker) resetLocked() {
	t.state = model.MatchState{Generation: t.state.Generation + 1}
	t.windowEvents = 0
}

// Apply feeds one classified event. It reports false when the event is not
// tracked (Unknown status or no category).
func (t *Tracker) Apply(ev *model.ParsedEvent) (model.MatchDelta, bool) {
	if !ev.Status.Tracked() || ev.Category == model.CategoryNone {
		return model.MatchDelta{}, false
	}
	payload, err := model.DecodePayload(ev)
	if err != nil && !errors.Is(err, model.ErrBadPayload) {
		return model.MatchDelta{}, false
	}
	if err != nil {
		t.log.Debug(context.Background(), "payload not applied", logger.Error(err), logger.String("event_id", ev.ID))
	}

	t.mu.Lock()
	ch := &changes{}
	if fs, ok := payload.(model.FightStatePayload); ok && strings.EqualFold(fs.State, t.resetState) {
		t.resetLocked()
		ch.reset = true
		ch.add("*")
	} else if ev.Category != model.CategoryConnection {
		t.observeWindow(ev, payload, ch)
	}
	if payload != nil {
		t.applyLocked(payload, ch)
	}
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	t.state.LastEventAt = model.Ptr(at)

	d := model.MatchDelta{
		EventID: ev.ID, EventCode: ev.EventCode, Changed: ch.fields, Reset: ch.reset,
		State: t.state.Clone(), At: at,
	}
	override := t.state.ManualOverrideActive
	t.mu.Unlock()

	metrics.UpdateOverrideActive(override)
	t.publish(d)
	return d, true
}

// observeWindow drives the manual-override window. A clock stop opens it, a
// clock start closes it. While open every event is buffered, and any event
// other than a round change arriving as the first and only one sets the flag.
func (t *Tracker) observeWindow(ev *model.ParsedEvent, payload model.Payload, ch *changes) {
	s := &t.state
	if clk, ok := payload.(model.ClockPayload); ok {
		switch {
		case clk.Action == model.ClockStop && !s.OverrideWindowOpen:
			s.OverrideWindowOpen = true
			s.ManualOverrideActive = false
			s.EventsSinceBreakStop = nil
			t.windowEvents = 0
			ch.add("override_window_open")
			return
		case clk.Action == model.ClockStart:
			if s.OverrideWindowOpen || s.ManualOverrideActive {
				ch.add("override_window_open", "manual_override_active")
			}
			s.OverrideWindowOpen = false
			s.ManualOverrideActive = false
			s.EventsSinceBreakStop = nil
			t.windowEvents = 0
			return
		}
	}
	if !s.OverrideWindowOpen {
		return
	}

	t.windowEvents++
	s.EventsSinceBreakStop = appendBounded(s.EventsSinceBreakStop, model.BufferedEvent{
		EventID: ev.ID, EventCode: ev.EventCode, Category: ev.Category, RawText: ev.RawText, ReceivedAt: ev.ReceivedAt,
	}, t.bufferSize)
	ch.add("events_since_break_stop")

	interRound := t.windowEvents == 1 && ev.Category == model.CategoryRound
	if !interRound && !s.ManualOverrideActive {
		s.ManualOverrideActive = true
		ch.add("manual_override_active")
		t.log.Info(context.Background(), "manual override suspected",
			logger.String("event_code", ev.EventCode), logger.Int("window_events", t.windowEvents))
	}
}

func (t *Tracker) applyLocked(p model.Payload, ch *changes) {
	s := &t.state
	switch v := p.(type) {
	case model.PointsPayload:
		a := s.Athlete(v.Athlete)
		if a.Points == nil {
			a.Points = map[int]int{}
		}
		a.Points[v.PointType]++
		ch.add("points")
	case model.HitLevelPayload:
		a := s.Athlete(v.Athlete)
		a.HitLevels = appendBounded(a.HitLevels, v.Level, t.hitHistory)
		ch.add("hit_levels")
	case model.WarningPayload:
		a := s.Athlete(v.Athlete)
		if raiseMax(&a.Warnings, v.Count) {
			ch.add("warnings")
		}
	case model.ScorePayload:
		a := s.Athlete(v.Athlete)
		if raiseMax(&a.Score, v.Score) {
			ch.add("score")
		}
	case model.RoundScorePayload:
		a := s.Athlete(v.Athlete)
		if a.RoundScores == nil {
			a.RoundScores = map[int]int{}
		}
		if cur, ok := a.RoundScores[v.Round]; !ok || v.Score > cur {
			a.RoundScores[v.Round] = v.Score
			ch.add("round_scores")
		}
	case model.ClockPayload:
		s.CurrentTime = model.Ptr(v.Time)
		ch.add("current_time")
		switch v.Action {
		case model.ClockStart:
			s.ClockRunning = model.Ptr(true)
			ch.add("clock_running")
		case model.ClockStop:
			s.ClockRunning = model.Ptr(false)
			ch.add("clock_running")
		}
	case model.RoundPayload:
		if raiseMax(&s.CurrentRound, v.Round) {
			ch.add("current_round")
		}
	case model.AthletePayload:
		a := s.Athlete(v.Athlete)
		a.Info = model.Ptr(v.Info)
		ch.add("info")
	case model.MatchConfigPayload:
		s.Config = model.Ptr(v.Config)
		ch.add("config")
	case model.InjuryPayload:
		a := s.Athlete(v.Athlete)
		a.InjuryAction = v.Action
		if v.Action == "reset" {
			a.InjuryTime = nil
		} else if v.Time != nil {
			a.InjuryTime = model.Ptr(*v.Time)
		}
		ch.add("injury")
	case model.BreakPayload:
		if v.Time != nil {
			s.BreakTime = model.Ptr(*v.Time)
			ch.add("break_time")
		}
	case model.ChallengePayload:
		a := s.Athlete(v.Athlete)
		switch {
		case v.Outcome == nil:
			a.Challenges.Requested++
		case *v.Outcome == 1:
			a.Challenges.Accepted++
		case *v.Outcome == 0:
			a.Challenges.Rejected++
		default:
			a.Challenges.Canceled++
		}
		ch.add("challenges")
	case model.WinnerPayload:
		s.Winner = model.Ptr(v.Athlete)
		s.WinReason = v.Reason
		ch.add("winner")
	case model.FightStatePayload:
		s.FightState = v.State
		ch.add("fight_state")
	case model.ConnectionPayload:
		s.Connected = model.Ptr(v.Connected)
		ch.add("connected")
	}
}

// raiseMax sets *dst to v when unset or smaller and reports whether it changed.
func raiseMax(dst **int, v int) bool {
	if *dst != nil && **dst >= v {
		return false
	}
	*dst = model.Ptr(v)
	return true
}

// appendBounded appends v and evicts from the front so len <= limit.
func appendBounded[T any](buf []T, v T, limit int) []T {
	buf = append(buf, v)
	if limit <= 0 {
		return buf
	}
	if over := len(buf) - limit; over > 0 && over <= len(buf) {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}

type changes struct {
	fields []string
	reset  bool
}

func (c *changes) add(names ...string) {
	for _, n := range names {
		dup := false
		for _, f := range c.fields {
			if f == n {
				dup = true
				break
			}
		}
		if !dup {
			c.fields = append(c.fields, n)
		}
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):([0-5]\d)$`)

// ClockTime is a PSS clock value in whole seconds, written as m:ss on the wire.
type ClockTime int

// ParseClock parses "m:ss" or "mm:ss".
func ParseClock(s string) (ClockTime, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: clock %q", ErrBadPayload, s)
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	return ClockTime(minutes*60 + seconds), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON writes the m:ss form.
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON reads the m:ss form.
func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Ptr returns a pointer to v. Used for the optional MatchState fields.
func Ptr[T any](v T) *T { return &v }

// AthleteInfo identifies one competitor.
type AthleteInfo struct {
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Country   string `json:"country"`
}

// ChallengeTally counts video replay challenges by outcome.
type ChallengeTally struct {
	Requested int `json:"requested"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Canceled  int `json:"canceled"`
}

// AthleteState is the per-athlete part of MatchState. Nil pointers mean no
// event has reported the value yet.
type AthleteState struct {
	Info         *AthleteInfo   `json:"info"`
	Score        *int           `json:"score"`
	RoundScores  map[int]int    `json:"round_scores"`
	Warnings     *int           `json:"warnings"`
	Points       map[int]int    `json:"points"`
	HitLevels    []int          `json:"hit_levels"`
	Challenges   ChallengeTally `json:"challenges"`
	InjuryTime   *ClockTime     `json:"injury_time"`
	InjuryAction string         `json:"injury_action,omitempty"`
}

// PointsTotal is the number of point events tallied.
func (a *AthleteState) PointsTotal() int {
	n := 0
	for _, c := range a.Points {
		n += c
	}
	return n
}

func (a AthleteState) clone() AthleteState {
	out := a
	if a.Info != nil {
		out.Info = Ptr(*a.Info)
	}
	if a.Score != nil {
		out.Score = Ptr(*a.Score)
	}
	if a.Warnings != nil {
		out.Warnings = Ptr(*a.Warnings)
	}
	if a.InjuryTime != nil {
		out.InjuryTime = Ptr(*a.InjuryTime)
	}
	out.RoundScores = cloneIntMap(a.RoundScores)
	out.Points = cloneIntMap(a.Points)
	out.HitLevels = append([]int(nil), a.HitLevels...)
	return out
}

func cloneIntMap(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MatchConfig is the match setup announced by the hardware.
type MatchConfig struct {
	Number        string     `json:"number"`
	Category      string     `json:"category"`
	Weight        string     `json:"weight"`
	Rounds        *int       `json:"rounds"`
	RoundDuration *ClockTime `json:"round_duration"`
	CountdownType string     `json:"countdown_type"`
}

// BufferedEvent is an event recorded inside the clock-stopped window.
type BufferedEvent struct {
	EventID    string    `json:"event_id"`
	EventCode  string    `json:"event_code"`
	Category   Category  `json:"category"`
	RawText    string    `json:"raw_text"`
	ReceivedAt time.Time `json:"received_at"`
}

// MatchState is the live state of the current match.
type MatchState struct {
	Generation           uint64          `json:"generation"`
	Athlete1             AthleteState    `json:"athlete1"`
	Athlete2             AthleteState    `json:"athlete2"`
	Config               *MatchConfig    `json:"config"`
	CurrentRound         *int            `json:"current_round"`
	CurrentTime          *ClockTime      `json:"current_time"`
	ClockRunning         *bool           `json:"clock_running"`
	BreakTime            *ClockTime      `json:"break_time"`
	Winner               *int            `json:"winner"`
	WinReason            string          `json:"win_reason,omitempty"`
	FightState           string          `json:"fight_state,omitempty"`
	Connected            *bool           `json:"connected"`
	ManualOverrideActive bool            `json:"manual_override_active"`
	OverrideWindowOpen   bool            `json:"override_window_open"`
	EventsSinceBreakStop []BufferedEvent `json:"events_since_break_stop"`
	LastEventAt          *time.Time      `json:"last_event_at"`
}

// Athlete returns the state of athlete 1 or 2, or nil.
func (s *MatchState) Athlete(n int) *AthleteState {
	switch n {
	case 1:
		return &s.Athlete1
	case 2:
		return &s.Athlete2
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s MatchState) Clone() MatchState {
	out := s
	out.Athlete1 = s.Athlete1.clone()
	out.Athlete2 = s.Athlete2.clone()
	if s.Config != nil {
		c := *s.Config
		if c.Rounds != nil {
			c.Rounds = Ptr(*c.Rounds)
		}
		if c.RoundDuration != nil {
			c.RoundDuration = Ptr(*c.RoundDuration)
		}
		out.Config = &c
	}
	for _, p := range []**int{&out.CurrentRound, &out.Winner} {
		if *p != nil {
			*p = Ptr(**p)
		}
	}
	for _, p := range []**ClockTime{&out.CurrentTime, &out.BreakTime} {
		if *p != nil {
			*p = Ptr(**p)
		}
	}
	for _, p := range []**bool{&out.ClockRunning, &out.Connected} {
		if *p != nil {
			*p = Ptr(**p)
		}
	}
	if s.LastEventAt != nil {
		out.LastEventAt = Ptr(*s.LastEventAt)
	}
	out.EventsSinceBreakStop = append([]BufferedEvent(nil), s.EventsSinceBreakStop...)
	return out
}

// MatchDelta is published after every applied event.
type MatchDelta struct {
	EventID   string     `json:"event_id"`
	EventCode string     `json:"event_code"`
	Changed   []string   `json:"changed"`
	Reset     bool       `json:"reset,omitempty"`
	State     MatchState `json:"state"`
	At        time.Time  `json:"at"`
}

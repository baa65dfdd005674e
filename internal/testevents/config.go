package testevents

import (
	"errors"
	"time"
)

// Mode selects what the generator produces.
type Mode string

const (
	// ModeScript replays a plausible three-round match.
	ModeScript Mode = "script"
	// ModeStress sends randomized but valid datagrams for every known code.
	ModeStress Mode = "stress"
	// ModeFuzz sends malformed, unknown and undecodable datagrams.
	ModeFuzz Mode = "fuzz"
)

// ErrUnknownMode is returned for a mode other than script, stress or fuzz.
var ErrUnknownMode = errors.New("unknown generator mode")

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeScript, ModeStress, ModeFuzz:
		return m, nil
	}
	return "", ErrUnknownMode
}

// Config holds configuration for a send run.
type Config struct {
	Addr            string // UDP target, host:port
	Mode            Mode   // script, stress or fuzz
	Count           int    // datagrams for stress/fuzz, script repetitions for script
	Rate            int    // datagrams per second; 0 sends as fast as possible
	Seed            uint64 // generator seed; 0 picks one from the clock
	ProtocolVersion string // grammar version to generate for
	GrammarPath     string // optional grammar file; empty uses the built-in grammar
}

// Stats holds run statistics.
type Stats struct {
	Generated int
	Sent      int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

package testevents

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

const defaultVersion = "2.3"

// matchScript is a compact three-round match in wire form. It exercises the
// new-match reset, identities, clock control, scoring, a warning during a
// stopped clock, a challenge, round scores, the break and the winner.
var matchScript = []string{
	"pre;FightLoaded;",
	"mch;101;M-58kg;58;3;2:00;down;",
	"at1;KIM;KIM Minsu;KOR;",
	"at2;LOP;LOPEZ Juan;ESP;",
	"rdy;FightReady;",
	"rnd;1;",
	"clk;2:00;start;",
	"hl1;41;",
	"pt1;2;",
	"sc1;2;",
	"hl2;28;",
	"pt2;1;",
	"sc2;1;",
	"clk;1:12;stop;",
	"wg2;1;",
	"ch1;1;",
	"clk;1:12;start;",
	"pt1;3;",
	"sc1;5;",
	"clk;0:00;stop;",
	"s11;5;",
	"s21;1;",
	"brk;1:00;start;",
	"brk;0:00;stop;",
	"rnd;2;",
	"clk;2:00;start;",
	"pt2;4;",
	"sc2;5;",
	"ij1;1:00;show;",
	"ij1;0:42;hide;",
	"pt1;1;",
	"sc1;6;",
	"clk;0:00;stop;",
	"s12;1;",
	"s22;4;",
	"rnd;3;",
	"clk;2:00;start;",
	"pt1;5;",
	"sc1;11;",
	"clk;0:00;stop;",
	"s13;5;",
	"s23;0;",
	"win;1;PTF;",
}

// Generator produces PSS datagrams from a registry snapshot.
type Generator struct {
	snap    *registry.Snapshot
	version string
	rng     *rand.Rand
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes output reproducible.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithProtocolVersion selects the grammar version to generate for.
func WithProtocolVersion(v string) GeneratorOption {
	return func(g *Generator) {
		if v != "" {
			g.version = v
		}
	}
}

// NewGenerator creates a generator over snap.
func NewGenerator(snap *registry.Snapshot, opts ...GeneratorOption) *Generator {
	g := &Generator{snap: snap, version: defaultVersion, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Script returns the built-in match script.
func (g *Generator) Script() []string {
	return append([]string(nil), matchScript...)
}

// Stress returns n valid datagrams drawn from every non-deprecated code of
// the active version, with range fields randomized inside their bounds.
func (g *Generator) Stress(n int) []string {
	var entries []*registry.Entry
	for _, e := range g.snap.Entries(g.version) {
		if !e.Definition.Deprecated {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	delim := g.snap.Delimiter(g.version)
	out := make([]string, 0, n)
	for range n {
		e := entries[g.rng.IntN(len(entries))]
		out = append(out, g.valid(e, delim))
	}
	return out
}

func (g *Generator) valid(e *registry.Entry, delim string) string {
	values := MinimalValues(e)
	for i := range values {
		for _, r := range e.Rules {
			if r.Field != values[i].Name || r.Kind != model.RuleRange || r.Definition.Min == nil || r.Definition.Max == nil {
				continue
			}
			lo, hi := int(*r.Definition.Min), int(*r.Definition.Max)
			if hi >= lo {
				values[i].Value = strconv.Itoa(lo + g.rng.IntN(hi-lo+1))
			}
		}
	}
	return grammar.Serialize(&e.Definition, values, nil, delim)
}

// Fuzz returns n datagrams meant to land as Partial, Unknown or to be
// dropped by the decoder.
func (g *Generator) Fuzz(n int) [][]byte {
	kinds := []func() []byte{
		g.unknownCode,
		g.outOfRange,
		g.missingFields,
		g.extraTokens,
		g.noise,
		g.invalidUTF8,
		func() []byte { return nil },
	}
	out := make([][]byte, 0, n)
	for range n {
		out = append(out, kinds[g.rng.IntN(len(kinds))]())
	}
	return out
}

func (g *Generator) unknownCode() []byte {
	code := "x" + g.letters(2)
	return fmt.Appendf(nil, "%s;%d;%s;", code, g.rng.IntN(100), g.letters(3))
}

func (g *Generator) outOfRange() []byte {
	return fmt.Appendf(nil, "pt%d;%d;", 1+g.rng.IntN(2), 6+g.rng.IntN(20))
}

func (g *Generator) missingFields() []byte {
	codes := []string{"clk;", "win;", "rnd;", "mch;;"}
	return []byte(codes[g.rng.IntN(len(codes))])
}

func (g *Generator) extraTokens() []byte {
	return fmt.Appendf(nil, "sc1;%d;%s;%s;", 1000+g.rng.IntN(100), g.letters(2), g.letters(4))
}

func (g *Generator) noise() []byte {
	b := make([]byte, 1+g.rng.IntN(24))
	for i := range b {
		b[i] = byte(0x20 + g.rng.IntN(0x5f))
	}
	return b
}

func (g *Generator) invalidUTF8() []byte {
	return []byte{'p', 't', '1', ';', 0xc3, 0x28, ';'}
}

func (g *Generator) letters(n int) string {
	var b strings.Builder
	for range n {
		b.WriteByte(byte('a' + g.rng.IntN(26)))
	}
	return b.String()
}

// Datagrams returns the payloads for mode. For ModeScript count is the
// number of times the match is replayed.
func (g *Generator) Datagrams(mode Mode, count int) ([][]byte, error) {
	if count <= 0 {
		count = 1
	}
	var texts []string
	switch mode {
	case ModeScript:
		for range count {
			texts = append(texts, g.Script()...)
		}
	case ModeStress:
		texts = g.Stress(count)
	case ModeFuzz:
		return g.Fuzz(count), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	out := make([][]byte, len(texts))
	for i, t := range texts {
		out[i] = []byte(t)
	}
	return out, nil
}

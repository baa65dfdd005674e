package registry

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/pss/internal/domain/model"
)

// Source contributes definitions and rules to a snapshot.
type Source interface {
	Name() string
	Load(ctx context.Context) (Bundle, error)
}

// Store is the durable side of the registry: promoted definitions and
// operator-managed rules.
type Store interface {
	ListDefinitions(ctx context.Context) ([]model.EventTypeDefinition, error)
	ListRules(ctx context.Context) ([]model.ValidationRule, error)
}

// StoreSource adapts a Store to a Source.
type StoreSource struct {
	Store Store
}

// Name implements Source.
func (StoreSource) Name() string { return "store" }

// Load implements Source.
func (s StoreSource) Load(ctx context.Context) (Bundle, error) {
	defs, err := s.Store.ListDefinitions(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("list definitions: %w", err)
	}
	rs, err := s.Store.ListRules(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("list rules: %w", err)
	}
	return Bundle{Definitions: defs, Rules: rs}, nil
}

// grammar file documents, decoded with koanf.
type (
	grammarDoc struct {
		Protocols []protocolDoc `koanf:"protocols"`
	}
	protocolDoc struct {
		Version   string     `koanf:"version"`
		Delimiter string     `koanf:"delimiter"`
		Events    []eventDoc `koanf:"events"`
	}
	eventDoc struct {
		Code        string     `koanf:"code"`
		Category    string     `koanf:"category"`
		Athlete     int        `koanf:"athlete"`
		Round       int        `koanf:"round"`
		Introduced  string     `koanf:"introduced"`
		Deprecated  bool       `koanf:"deprecated"`
		Description string     `koanf:"description"`
		Fields      []fieldDoc `koanf:"fields"`
		Rules       []ruleDoc  `koanf:"rules"`
	}
	fieldDoc struct {
		Name   string   `koanf:"name"`
		Kind   string   `koanf:"kind"`
		Values []string `koanf:"values"`
	}
	ruleDoc struct {
		Name      string   `koanf:"name"`
		Kind      string   `koanf:"kind"`
		Field     string   `koanf:"field"`
		Min       *float64 `koanf:"min"`
		Max       *float64 `koanf:"max"`
		Pattern   string   `koanf:"pattern"`
		Type      string   `koanf:"type"`
		Predicate string   `koanf:"predicate"`
		Values    []string `koanf:"values"`
		Fields    []string `koanf:"fields"`
		Message   string   `koanf:"message"`
		Active    *bool    `koanf:"active"`
	}
)

// FileSource reads a YAML grammar file.
type FileSource struct {
	Path string
}

// Name implements Source.
func (f FileSource) Name() string { return "file:" + f.Path }

// Load implements Source.
func (f FileSource) Load(_ context.Context) (Bundle, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(f.Path), yaml.Parser()); err != nil {
		return Bundle{}, fmt.Errorf("%w: %s: %w", ErrBadGrammar, f.Path, err)
	}
	var doc grammarDoc
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Bundle{}, fmt.Errorf("%w: %s: %w", ErrBadGrammar, f.Path, err)
	}
	return doc.bundle()
}

func (g grammarDoc) bundle() (Bundle, error) {
	if len(g.Protocols) == 0 {
		return Bundle{}, fmt.Errorf("%w: no protocols", ErrBadGrammar)
	}
	b := Bundle{Protocols: map[string]string{}}
	for _, p := range g.Protocols {
		if p.Version == "" {
			return Bundle{}, fmt.Errorf("%w: protocol without version", ErrBadGrammar)
		}
		delim := p.Delimiter
		if delim == "" {
			delim = DefaultDelimiter
		}
		b.Protocols[p.Version] = delim
		for _, e := range p.Events {
			def := model.EventTypeDefinition{
				Code: e.Code, ProtocolVersion: p.Version, Introduced: e.Introduced, Deprecated: e.Deprecated,
				Category: model.Category(e.Category), Athlete: e.Athlete, Round: e.Round, Description: e.Description,
			}
			for _, fd := range e.Fields {
				kind := model.FieldKind(fd.Kind)
				if kind == "" {
					kind = model.KindString
				}
				def.Fields = append(def.Fields, model.FieldSpec{Name: fd.Name, Kind: kind, Values: fd.Values})
			}
			b.Definitions = append(b.Definitions, def)
			for _, rd := range e.Rules {
				kind, ok := model.ParseRuleKind(rd.Kind)
				if !ok {
					kind = model.RuleKind(rd.Kind)
				}
				active := rd.Active == nil || *rd.Active
				b.Rules = append(b.Rules, model.ValidationRule{
					EventCode: e.Code, ProtocolVersion: p.Version, Name: rd.Name, Kind: kind, Field: rd.Field,
					Definition: model.RuleDefinition{
						Min: rd.Min, Max: rd.Max, Pattern: rd.Pattern, Type: rd.Type,
						Predicate: rd.Predicate, Values: rd.Values, Fields: rd.Fields,
					},
					ErrorMessage: rd.Message, Active: active,
				})
			}
		}
	}
	return b, nil
}

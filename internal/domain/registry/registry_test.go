package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
	. "github.com/smartystreets/goconvey/convey"
)

const grammarYAML = `
protocols:
  - version: "9.0"
    delimiter: "|"
    events:
      - code: pt1
        category: points
        athlete: 1
        fields:
          - { name: point_type, kind: int }
        rules:
          - { name: point_type_range, kind: range, field: point_type, min: 1, max: 5, message: "point type must be 1-5" }
          - { name: broken, kind: format, field: point_type, pattern: "(" }
      - code: old
        deprecated: true
        fields:
          - { name: v }
`

type memStore struct {
	defs  []model.EventTypeDefinition
	rules []model.ValidationRule
	err   error
}

func (m *memStore) ListDefinitions(context.Context) ([]model.EventTypeDefinition, error) {
	return m.defs, m.err
}

func (m *memStore) ListRules(context.Context) ([]model.ValidationRule, error) {
	return m.rules, m.err
}

func writeGrammar(content string) string {
	path := filepath.Join(os.TempDir(), "pss-grammar-test.yaml")
	So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)
	return path
}

func TestBuiltinRegistry(t *testing.T) {
	Convey("Given a registry with the built-in grammar", t, func() {
		ctx := context.Background()
		reg := registry.New()

		Convey("Before the first reload the snapshot should be empty but usable", func() {
			So(reg.Snapshot(), ShouldNotBeNil)
			So(reg.Snapshot().Len(), ShouldEqual, 0)
			So(reg.Snapshot().Delimiter("2.3"), ShouldEqual, ";")
		})

		snap, err := reg.Reload(ctx)

		Convey("Then it should load both protocol versions without warnings", func() {
			So(err, ShouldBeNil)
			So(snap.Generation, ShouldEqual, 1)
			So(snap.Warnings, ShouldBeEmpty)
			So(snap.Versions(), ShouldResemble, []string{"2.2", "2.3"})
		})

		Convey("Then lookups should resolve per version", func() {
			pt, ok := snap.Lookup("pt1", "2.3")
			So(ok, ShouldBeTrue)
			So(pt.Definition.Category, ShouldEqual, model.CategoryPoints)
			So(len(pt.Checks), ShouldEqual, 2)

			_, ok = snap.Lookup("hl1", "2.2")
			So(ok, ShouldBeFalse)

			avt, ok := snap.Lookup("avt", "2.3")
			So(ok, ShouldBeTrue)
			So(avt.Definition.Deprecated, ShouldBeTrue)

			legacy, ok := snap.Lookup("avt", "2.2")
			So(ok, ShouldBeTrue)
			So(legacy.Definition.Deprecated, ShouldBeFalse)

			s12, ok := snap.Lookup("s12", "2.3")
			So(ok, ShouldBeTrue)
			So(s12.Definition.Athlete, ShouldEqual, 1)
			So(s12.Definition.Round, ShouldEqual, 2)

			conn, ok := snap.Lookup(model.CodeConnected, "2.3")
			So(ok, ShouldBeTrue)
			So(conn.Definition.Fields, ShouldBeEmpty)
		})

		Convey("Then a second reload should bump the generation", func() {
			next, err := reg.Reload(ctx)
			So(err, ShouldBeNil)
			So(next.Generation, ShouldEqual, 2)
			So(reg.Snapshot(), ShouldEqual, next)
		})
	})
}

func TestFileAndStoreSources(t *testing.T) {
	Convey("Given a grammar file", t, func() {
		ctx := context.Background()
		path := writeGrammar(grammarYAML)
		defer func() { _ = os.Remove(path) }()

		reg := registry.New(registry.WithSources(registry.FileSource{Path: path}))
		snap, err := reg.Reload(ctx)

		Convey("Then it should load definitions, the delimiter, and skip broken rules", func() {
			So(err, ShouldBeNil)
			So(snap.Delimiter("9.0"), ShouldEqual, "|")
			e, ok := snap.Lookup("pt1", "9.0")
			So(ok, ShouldBeTrue)
			So(len(e.Checks), ShouldEqual, 1)
			So(e.Rules[0].Name, ShouldEqual, "point_type_range")
			So(*e.Rules[0].Definition.Max, ShouldEqual, 5)
			So(len(snap.Warnings), ShouldEqual, 1)

			old, ok := snap.Lookup("old", "9.0")
			So(ok, ShouldBeTrue)
			So(old.Definition.Fields[0].Kind, ShouldEqual, model.KindString)
		})

		Convey("When the file becomes invalid", func() {
			So(os.WriteFile(path, []byte("protocols: ["), 0o600), ShouldBeNil)
			_, err := reg.Reload(ctx)

			Convey("Then the previous snapshot should stay active", func() {
				So(errors.Is(err, registry.ErrLoadSource), ShouldBeTrue)
				So(reg.Snapshot(), ShouldEqual, snap)
			})
		})
	})

	Convey("Given the built-in grammar overlaid by a store", t, func() {
		ctx := context.Background()
		store := &memStore{
			defs: []model.EventTypeDefinition{{
				Code: "xyz", ProtocolVersion: "2.3", Fields: []model.FieldSpec{{Name: "a", Kind: model.KindInt}},
			}},
			rules: []model.ValidationRule{
				{EventCode: "xyz", ProtocolVersion: "2.3", Name: "a_required", Kind: model.RuleRequired, Field: "a", Active: true},
				{EventCode: "pt1", ProtocolVersion: "2.3", Name: "point_type_range", Kind: model.RuleRange, Field: "point_type", Active: false},
				{EventCode: "nope", ProtocolVersion: "2.3", Name: "orphan", Kind: model.RuleRequired, Field: "a", Active: true},
			},
		}
		reg := registry.New(registry.WithSources(registry.DefaultSource{}, registry.StoreSource{Store: store}))
		snap, err := reg.Reload(ctx)

		Convey("Then promoted definitions should appear and disabled rules vanish", func() {
			So(err, ShouldBeNil)
			x, ok := snap.Lookup("xyz", "2.3")
			So(ok, ShouldBeTrue)
			So(len(x.Checks), ShouldEqual, 1)

			pt, _ := snap.Lookup("pt1", "2.3")
			So(len(pt.Checks), ShouldEqual, 1)
			So(pt.Rules[0].Name, ShouldEqual, "point_type_required")

			So(len(snap.Warnings), ShouldEqual, 1)
		})

		Convey("When the store fails", func() {
			store.err = errors.New("disk gone")
			_, err := reg.Reload(ctx)
			So(errors.Is(err, registry.ErrLoadSource), ShouldBeTrue)
			So(reg.Snapshot(), ShouldEqual, snap)
		})
	})
}

func TestConcurrentReadsDuringReload(t *testing.T) {
	Convey("Given readers racing a reloading registry", t, func() {
		ctx := context.Background()
		var swaps int
		reg := registry.New(registry.WithOnSwap(func(*registry.Snapshot) { swaps++ }))
		_, err := reg.Reload(ctx)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					s := reg.Snapshot()
					if e, ok := s.Lookup("pt1", "2.3"); !ok || len(e.Checks) != 2 {
						panic("observed an inconsistent snapshot")
					}
				}
			}()
		}
		for i := 0; i < 10; i++ {
			_, err := reg.Reload(ctx)
			So(err, ShouldBeNil)
		}
		wg.Wait()

		So(swaps, ShouldEqual, 11)
		So(reg.Snapshot().Generation, ShouldEqual, 11)
	})
}

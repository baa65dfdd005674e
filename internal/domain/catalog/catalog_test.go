package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pss/internal/domain/catalog"
	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/internal/domain/validation"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStore struct {
	defs      []model.EventTypeDefinition
	rules     []model.ValidationRule
	suggested map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{suggested: map[string]string{}} }

func (f *fakeStore) SaveDefinition(_ context.Context, d model.EventTypeDefinition) error {
	f.defs = append(f.defs, d)
	return nil
}

func (f *fakeStore) SaveRule(_ context.Context, r model.ValidationRule) error {
	f.rules = append(f.rules, r)
	return nil
}

func (f *fakeStore) UpsertUnknown(_ context.Context, rec model.UnknownEventRecord) error {
	f.suggested[rec.PatternHash] = rec.SuggestedEventCode
	return nil
}

func (f *fakeStore) ListDefinitions(context.Context) ([]model.EventTypeDefinition, error) {
	return f.defs, nil
}

func (f *fakeStore) ListRules(context.Context) ([]model.ValidationRule, error) {
	return f.rules, nil
}

func unknown(text string, at time.Time) *model.ParsedEvent {
	return &model.ParsedEvent{
		EventCode: grammar.Split(text, ";")[0], Tokens: grammar.Split(text, ";"),
		RawText: text, ReceivedAt: at, Status: model.StatusUnknown,
	}
}

func TestNormalize(t *testing.T) {
	Convey("Given unknown token lists", t, func() {
		So(catalog.Normalize([]string{"zz9", "12", "1:30", "abc", "", "-3", "2.5"}),
			ShouldEqual, "zz9;{1:int};{2:time};{3:str};;{5:int};{6:num}")

		Convey("Then shapes differing only in values should hash alike", func() {
			a := catalog.Hash(catalog.Normalize([]string{"zz9", "1", "KOR"}))
			b := catalog.Hash(catalog.Normalize([]string{"zz9", "77", "USA"}))
			c := catalog.Hash(catalog.Normalize([]string{"zz8", "1", "KOR"}))
			So(a, ShouldEqual, b)
			So(a, ShouldNotEqual, c)
			So(len(a), ShouldEqual, 16)
		})
	})
}

func TestRecordAndList(t *testing.T) {
	Convey("Given an empty catalog", t, func() {
		c := catalog.New()
		t0 := time.Unix(1700000000, 0)

		Convey("When the same shape arrives repeatedly", func() {
			for i := 0; i < 5; i++ {
				c.Record(unknown("zz9;1;abc", t0.Add(time.Duration(i)*time.Second)))
			}
			rec := c.Record(unknown("zz9;42;xyz", t0.Add(10*time.Second)))

			Convey("Then exactly one record should count every occurrence", func() {
				So(c.Len(), ShouldEqual, 1)
				So(rec.OccurrenceCount, ShouldEqual, 6)
				So(rec.FirstSeen, ShouldEqual, t0)
				So(rec.LastSeen, ShouldEqual, t0.Add(10*time.Second))
				So(rec.RawPattern, ShouldEqual, "zz9;1;abc")
			})
		})

		Convey("When different shapes arrive", func() {
			c.Record(unknown("aa;1", t0))
			c.Record(unknown("bb;1", t0))
			c.Record(unknown("bb;2", t0))
			c.Record(unknown("cc", t0))
			c.Record(unknown("cc", t0))
			c.Record(unknown("cc", t0))

			Convey("Then listing should order by occurrence", func() {
				list := c.List(0)
				So(len(list), ShouldEqual, 3)
				So(list[0].Pattern, ShouldEqual, "cc")
				So(list[1].Pattern, ShouldEqual, "bb;{1:int}")
				So(len(c.List(2)), ShouldEqual, 2)
			})
		})

		Convey("When seeded from persisted records", func() {
			c.Seed([]model.UnknownEventRecord{{PatternHash: catalog.Hash("zz9;{1:int}"), Pattern: "zz9;{1:int}", OccurrenceCount: 10, FirstSeen: t0}})
			rec := c.Record(unknown("zz9;5", t0.Add(time.Minute)))

			So(rec.OccurrenceCount, ShouldEqual, 11)
			So(rec.FirstSeen, ShouldEqual, t0)
		})
	})
}

func TestPromote(t *testing.T) {
	Convey("Given an unknown shape and a registry backed by a store", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		reg := registry.New(registry.WithSources(registry.DefaultSource{}, registry.StoreSource{Store: store}))
		_, err := reg.Reload(ctx)
		So(err, ShouldBeNil)

		c := catalog.New(catalog.WithPromotion(store, reg))
		rec := c.Record(unknown("vid;1;replay", time.Now()))

		parse := func(text string) *model.ParsedEvent {
			ev, entry := grammar.Parse(reg.Snapshot(), "2.3", model.RawMessage{Text: text})
			validation.Apply(ev, entry)
			return ev
		}
		before := parse("vid;1;replay")
		So(before.Status, ShouldEqual, model.StatusUnknown)

		Convey("When the operator promotes it", func() {
			snap, err := c.Promote(ctx, catalog.Promotion{
				PatternHash: rec.PatternHash,
				Definition: model.EventTypeDefinition{Code: "vid", Fields: []model.FieldSpec{
					{Name: "athlete", Kind: model.KindInt}, {Name: "kind"},
				}},
				Rules: []model.ValidationRule{{Name: "athlete_number", Kind: model.RuleCustom, Field: "athlete",
					Definition: model.RuleDefinition{Predicate: "athlete_number"}, Active: true}},
			})

			Convey("Then future datagrams should be recognized but past ones unchanged", func() {
				So(err, ShouldBeNil)
				So(snap.Generation, ShouldEqual, 2)
				So(parse("vid;2;replay").Status, ShouldEqual, model.StatusRecognized)
				So(parse("vid;3;replay").Status, ShouldEqual, model.StatusPartial)
				So(before.Status, ShouldEqual, model.StatusUnknown)

				got, _ := c.Get(rec.PatternHash)
				So(got.SuggestedEventCode, ShouldEqual, "vid")
				So(store.suggested[rec.PatternHash], ShouldEqual, "vid")
				So(store.rules[0].EventCode, ShouldEqual, "vid")
				So(store.rules[0].ProtocolVersion, ShouldEqual, "2.3")
			})
		})

		Convey("When the promotion is invalid", func() {
			_, err := c.Promote(ctx, catalog.Promotion{PatternHash: rec.PatternHash})
			So(errors.Is(err, catalog.ErrInvalidPromotion), ShouldBeTrue)

			_, err = c.Promote(ctx, catalog.Promotion{
				PatternHash: rec.PatternHash,
				Definition:  model.EventTypeDefinition{Code: "vid"},
				Rules:       []model.ValidationRule{{Name: "r", Kind: model.RuleRequired, Field: "missing", Active: true}},
			})
			So(errors.Is(err, catalog.ErrInvalidPromotion), ShouldBeTrue)
			So(store.defs, ShouldBeEmpty)

			_, err = c.Promote(ctx, catalog.Promotion{PatternHash: "nope", Definition: model.EventTypeDefinition{Code: "x"}})
			So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
		})

		Convey("When no store is configured", func() {
			_, err := catalog.New().Promote(ctx, catalog.Promotion{})
			So(errors.Is(err, catalog.ErrNoStore), ShouldBeTrue)
		})
	})
}

package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/pss/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClockTime(t *testing.T) {
	Convey("Given PSS clock strings", t, func() {
		Convey("When parsing valid values", func() {
			c, err := model.ParseClock("1:05")
			So(err, ShouldBeNil)
			So(int(c), ShouldEqual, 65)
			So(c.String(), ShouldEqual, "1:05")

			z, err := model.ParseClock("0:00")
			So(err, ShouldBeNil)
			So(int(z), ShouldEqual, 0)
		})

		Convey("When parsing malformed values", func() {
			for _, s := range []string{"", "1:5", "1:60", "abc", "100:00"} {
				_, err := model.ParseClock(s)
				So(errors.Is(err, model.ErrBadPayload), ShouldBeTrue)
			}
		})

		Convey("When marshaling to JSON", func() {
			b, err := json.Marshal(model.ClockTime(120))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `"2:00"`)
		})
	})
}

func TestStatusAndReclassify(t *testing.T) {
	Convey("Given recognition statuses", t, func() {
		s, err := model.ParseStatus(" Partial ")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, model.StatusPartial)

		_, err = model.ParseStatus("maybe")
		So(errors.Is(err, model.ErrInvalidStatus), ShouldBeTrue)

		So(model.StatusUnknown.Tracked(), ShouldBeFalse)
		So(model.StatusDeprecated.Tracked(), ShouldBeTrue)
	})

	Convey("Given reclassification requests", t, func() {
		ok := model.ReclassifyRequest{EventID: "e1", NewStatus: model.StatusRecognized, Reason: "operator confirmed"}
		So(ok.Validate(), ShouldBeNil)

		bad := ok
		bad.NewStatus = "great"
		So(errors.Is(bad.Validate(), model.ErrInvalidStatus), ShouldBeTrue)

		blank := ok
		blank.Reason = "   "
		So(errors.Is(blank.Validate(), model.ErrReasonRequired), ShouldBeTrue)

		noID := ok
		noID.EventID = ""
		So(errors.Is(noID.Validate(), model.ErrInvalidRequest), ShouldBeTrue)
	})
}

func event(code string, cat model.Category, athlete int, fields ...string) *model.ParsedEvent {
	ev := &model.ParsedEvent{EventCode: code, Category: cat, Athlete: athlete}
	for i := 0; i+1 < len(fields); i += 2 {
		ev.Fields = append(ev.Fields, model.FieldValue{Name: fields[i], Value: fields[i+1]})
	}
	return ev
}

func TestDecodePayload(t *testing.T) {
	Convey("Given parsed events of each category", t, func() {
		Convey("When decoding points", func() {
			p, err := model.DecodePayload(event("pt1", model.CategoryPoints, 1, "point_type", "3"))
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.PointsPayload{Athlete: 1, PointType: 3})
		})

		Convey("When decoding a clock stop", func() {
			p, err := model.DecodePayload(event("clk", model.CategoryClock, 0, "time", "1:30", "action", "stop"))
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.ClockPayload{Time: 90, Action: model.ClockStop})
		})

		Convey("When decoding a clock tick without action", func() {
			p, err := model.DecodePayload(event("clk", model.CategoryClock, 0, "time", "1:29"))
			So(err, ShouldBeNil)
			So(p.(model.ClockPayload).Action, ShouldEqual, model.ClockTick)
		})

		Convey("When decoding match config with optional fields absent", func() {
			p, err := model.DecodePayload(event("mch", model.CategoryMatchConfig, 0, "match_number", "101", "category", "senior"))
			So(err, ShouldBeNil)
			cfg := p.(model.MatchConfigPayload).Config
			So(cfg.Number, ShouldEqual, "101")
			So(cfg.Rounds, ShouldBeNil)
			So(cfg.RoundDuration, ShouldBeNil)
		})

		Convey("When decoding a raised challenge", func() {
			p, err := model.DecodePayload(event("ch2", model.CategoryChallenge, 2))
			So(err, ShouldBeNil)
			So(p.(model.ChallengePayload).Outcome, ShouldBeNil)
		})

		Convey("When decoding a disconnect marker", func() {
			p, err := model.DecodePayload(event(model.CodeDisconnected, model.CategoryConnection, 0))
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.ConnectionPayload{Connected: false})
		})

		Convey("When a needed field is malformed", func() {
			_, err := model.DecodePayload(event("pt1", model.CategoryPoints, 1, "point_type", "x"))
			So(errors.Is(err, model.ErrBadPayload), ShouldBeTrue)
		})

		Convey("When the event is untracked", func() {
			_, err := model.DecodePayload(event("avt", model.CategoryNone, 0))
			So(errors.Is(err, model.ErrNoPayload), ShouldBeTrue)
		})
	})
}

func TestMatchStateClone(t *testing.T) {
	Convey("Given a populated match state", t, func() {
		s := model.MatchState{CurrentRound: model.Ptr(2)}
		s.Athlete1.Points = map[int]int{1: 2}
		s.Athlete1.HitLevels = []int{10, 20}

		c := s.Clone()
		*c.CurrentRound = 3
		c.Athlete1.Points[1] = 9
		c.Athlete1.HitLevels[0] = 99

		Convey("Then the clone should not share memory with the original", func() {
			So(*s.CurrentRound, ShouldEqual, 2)
			So(s.Athlete1.Points[1], ShouldEqual, 2)
			So(s.Athlete1.HitLevels[0], ShouldEqual, 10)
			So(s.Athlete1.PointsTotal(), ShouldEqual, 2)
		})

		Convey("Then absent optionals should marshal as null", func() {
			b, err := json.Marshal(model.MatchState{})
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"current_round":null`)
			So(string(b), ShouldContainSubstring, `"current_time":null`)

			b, err = json.Marshal(model.MatchState{CurrentRound: model.Ptr(0)})
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"current_round":0`)
		})
	})
}

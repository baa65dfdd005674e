package hub_test

import (
	"testing"

	"github.com/okian/pss/internal/adapters/mq/hub"
	"github.com/okian/pss/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHub(t *testing.T) {
	Convey("Given a hub with two subscribers", t, func() {
		h := hub.New(hub.WithBuffer(2))
		fast := h.Subscribe("fast")
		slow := h.Subscribe("slow")
		So(h.Len(), ShouldEqual, 2)

		Convey("When a slow subscriber falls behind", func() {
			got := []string{}
			for _, code := range []string{"a", "b", "c", "d"} {
				h.PublishEvent(&model.ParsedEvent{EventCode: code})
				env := <-fast.C()
				got = append(got, env.Event.EventCode)
			}

			Convey("Then the fast one should see everything and the slow one only the newest", func() {
				So(got, ShouldResemble, []string{"a", "b", "c", "d"})
				So(slow.Dropped(), ShouldEqual, 2)
				So((<-slow.C()).Event.EventCode, ShouldEqual, "c")
				So((<-slow.C()).Event.EventCode, ShouldEqual, "d")
				So(fast.Dropped(), ShouldEqual, 0)
			})
		})

		Convey("When deltas and unknowns are published", func() {
			h.PublishDelta(model.MatchDelta{EventCode: "rnd"})
			h.PublishUnknown(model.UnknownEventRecord{PatternHash: "abc"})

			d := <-fast.C()
			u := <-fast.C()
			So(d.Kind, ShouldEqual, hub.KindMatchDelta)
			So(d.Delta.EventCode, ShouldEqual, "rnd")
			So(u.Kind, ShouldEqual, hub.KindUnknown)
			So(u.Unknown.PatternHash, ShouldEqual, "abc")
		})

		Convey("When a subscriber leaves", func() {
			h.Unsubscribe(slow)
			h.Unsubscribe(slow)
			h.PublishEvent(&model.ParsedEvent{EventCode: "a"})

			_, open := <-slow.C()
			So(open, ShouldBeFalse)
			So(h.Len(), ShouldEqual, 1)
		})

		Convey("When the hub closes", func() {
			h.Close()
			_, open := <-fast.C()
			So(open, ShouldBeFalse)
			So(func() { h.PublishEvent(&model.ParsedEvent{}) }, ShouldNotPanic)
		})
	})
}

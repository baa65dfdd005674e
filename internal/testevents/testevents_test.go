package testevents_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/internal/domain/validation"
	"github.com/okian/pss/internal/testevents"
)

func classify(snap *registry.Snapshot, text string) *model.ParsedEvent {
	ev, entry := grammar.Parse(snap, "2.3", model.RawMessage{Text: text, ReceivedAt: time.Now()})
	validation.Apply(ev, entry)
	return ev
}

func builtin() *registry.Snapshot {
	snap, err := registry.New().Reload(context.Background())
	So(err, ShouldBeNil)
	return snap
}

func TestGenerator(t *testing.T) {
	Convey("Given a generator over the built-in grammar", t, func() {
		snap := builtin()
		gen := testevents.NewGenerator(snap, testevents.WithSeed(7))

		Convey("When producing the match script", func() {
			script := gen.Script()

			Convey("Then every line should be recognized", func() {
				So(script, ShouldNotBeEmpty)
				for _, line := range script {
					ev := classify(snap, line)
					So(ev.Status, ShouldEqual, model.StatusRecognized)
					So(ev.Errors, ShouldBeEmpty)
				}
			})
		})

		Convey("When producing a stress burst", func() {
			burst := gen.Stress(300)

			Convey("Then each datagram should be valid and codes should vary", func() {
				So(burst, ShouldHaveLength, 300)
				codes := map[string]bool{}
				for _, line := range burst {
					ev := classify(snap, line)
					So(ev.Status, ShouldEqual, model.StatusRecognized)
					codes[ev.EventCode] = true
				}
				So(len(codes), ShouldBeGreaterThan, 10)
			})
		})

		Convey("When fuzzing with the same seed twice", func() {
			a := testevents.NewGenerator(snap, testevents.WithSeed(42)).Fuzz(50)
			b := testevents.NewGenerator(snap, testevents.WithSeed(42)).Fuzz(50)

			Convey("Then the output should be reproducible and never fully recognized", func() {
				So(a, ShouldResemble, b)
				for _, d := range a {
					if len(d) == 0 {
						continue
					}
					So(classify(snap, string(d)).Status, ShouldNotEqual, model.StatusRecognized)
				}
			})
		})

		Convey("When asking for datagrams by mode", func() {
			script, err := gen.Datagrams(testevents.ModeScript, 2)
			So(err, ShouldBeNil)
			_, bad := gen.Datagrams("chaos", 1)

			Convey("Then script repeats and unknown modes fail", func() {
				So(len(script), ShouldEqual, 2*len(gen.Script()))
				So(errors.Is(bad, testevents.ErrUnknownMode), ShouldBeTrue)
			})
		})
	})
}

func TestParseMode(t *testing.T) {
	Convey("Given mode names", t, func() {
		m, err := testevents.ParseMode("stress")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, testevents.ModeStress)

		_, err = testevents.ParseMode("STRESS")
		So(errors.Is(err, testevents.ErrUnknownMode), ShouldBeTrue)
	})
}

func TestRun(t *testing.T) {
	Convey("Given a local UDP listener", t, func() {
		pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		So(err, ShouldBeNil)
		defer pc.Close()

		got := make(chan string, 100)
		go func() {
			buf := make([]byte, 2048)
			for {
				n, _, err := pc.ReadFromUDP(buf)
				if err != nil {
					return
				}
				got <- string(buf[:n])
			}
		}()

		Convey("When running the script mode", func() {
			stats, err := testevents.Run(context.Background(), &testevents.Config{
				Addr:  pc.LocalAddr().String(),
				Mode:  testevents.ModeScript,
				Count: 1,
				Rate:  1000,
				Seed:  1,
			})

			Convey("Then every datagram should arrive in order", func() {
				So(err, ShouldBeNil)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Sent, ShouldEqual, stats.Generated)

				first := <-got
				So(first, ShouldEqual, "pre;FightLoaded;")
			})
		})

		Convey("When the context is already canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			stats, err := testevents.Run(ctx, &testevents.Config{
				Addr: pc.LocalAddr().String(), Mode: testevents.ModeStress, Count: 10,
			})

			Convey("Then the run stops before generating anything", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(stats.Generated, ShouldEqual, 0)
				So(stats.Sent, ShouldEqual, 0)
				So(stats.Failed, ShouldEqual, 0)
			})
		})
	})
}

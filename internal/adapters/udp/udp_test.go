package udp_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pss/internal/adapters/mq/queue"
	"github.com/okian/pss/internal/adapters/udp"
	"github.com/okian/pss/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (c *captureSink) Enqueue(_ context.Context, m queue.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return true
}

func (c *captureSink) snapshot() []queue.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.Message(nil), c.msgs...)
}

type counter struct {
	datagrams atomic.Int64
	decode    atomic.Int64
}

func (c *counter) RecordDatagram()    { c.datagrams.Add(1) }
func (c *counter) RecordDecodeError() { c.decode.Add(1) }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestReceiver(t *testing.T) {
	Convey("Given a receiver bound to loopback", t, func() {
		sink := &captureSink{}
		cnt := &counter{}
		r, err := udp.New(sink, udp.WithBind("127.0.0.1"), udp.WithPort(0), udp.WithStats(cnt))
		So(err, ShouldBeNil)
		So(r.Start(context.Background()), ShouldBeNil)
		defer func() { _ = r.Stop(time.Second) }()

		conn, err := net.DialUDP("udp4", nil, r.Addr().(*net.UDPAddr))
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("When valid datagrams and sentinels arrive", func() {
			for _, d := range []string{"pt1;3;", "Connected", "disconnected;"} {
				_, err := conn.Write([]byte(d))
				So(err, ShouldBeNil)
			}
			So(waitFor(func() bool { return len(sink.snapshot()) == 3 }), ShouldBeTrue)
			msgs := sink.snapshot()

			Convey("Then text should be forwarded and sentinels mapped", func() {
				So(msgs[0].Text, ShouldEqual, "pt1;3;")
				So(msgs[0].Sentinel, ShouldBeFalse)
				So(msgs[0].Source, ShouldNotBeEmpty)
				So(msgs[1].Text, ShouldEqual, model.CodeConnected)
				So(msgs[1].Sentinel, ShouldBeTrue)
				So(msgs[2].Text, ShouldEqual, model.CodeDisconnected)
				So(cnt.datagrams.Load(), ShouldEqual, 3)
			})
		})

		Convey("When an invalid UTF-8 datagram arrives", func() {
			_, err := conn.Write([]byte{'p', 't', '1', ';', 0xff, 0xfe, 0xfd})
			So(err, ShouldBeNil)
			_, err = conn.Write([]byte("rnd;1;"))
			So(err, ShouldBeNil)

			Convey("Then it should be counted and dropped", func() {
				So(waitFor(func() bool { return len(sink.snapshot()) == 1 }), ShouldBeTrue)
				So(sink.snapshot()[0].Text, ShouldEqual, "rnd;1;")
				So(r.DecodeErrors(), ShouldEqual, 1)
				So(cnt.decode.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestReceiverBindFailure(t *testing.T) {
	Convey("Given a port already in use", t, func() {
		first, err := udp.New(&captureSink{}, udp.WithBind("127.0.0.1"), udp.WithPort(0))
		So(err, ShouldBeNil)
		So(first.Start(context.Background()), ShouldBeNil)
		defer func() { _ = first.Stop(time.Second) }()

		port := first.Addr().(*net.UDPAddr).Port
		second, err := udp.New(&captureSink{}, udp.WithBind("127.0.0.1"), udp.WithPort(port))
		So(err, ShouldBeNil)

		Convey("Then Start should fail with ErrBind", func() {
			err := second.Start(context.Background())
			So(errors.Is(err, udp.ErrBind), ShouldBeTrue)
		})
	})

	Convey("Given a non-IPv4 bind address", t, func() {
		r, err := udp.New(&captureSink{}, udp.WithBind("::1"))
		So(err, ShouldBeNil)
		So(errors.Is(r.Start(context.Background()), udp.ErrBind), ShouldBeTrue)
	})

	Convey("Given an unknown encoding", t, func() {
		_, err := udp.New(&captureSink{}, udp.WithEncoding("klingon-8"))
		So(errors.Is(err, udp.ErrUnknownEncoding), ShouldBeTrue)
	})
}

func TestDecoder(t *testing.T) {
	Convey("Given decoders for several charsets", t, func() {
		Convey("When UTF-8 carries a BOM", func() {
			d, err := udp.NewDecoder("utf-8")
			So(err, ShouldBeNil)
			s, err := d.Decode([]byte("\xEF\xBB\xBFat1;KIM;"))
			So(err, ShouldBeNil)
			So(s, ShouldEqual, "at1;KIM;")
		})

		Convey("When windows-1252 bytes arrive", func() {
			d, err := udp.NewDecoder("latin1")
			So(err, ShouldBeNil)
			So(d.Name(), ShouldEqual, "windows-1252")
			s, err := d.Decode([]byte("at1;M\xfcller;"))
			So(err, ShouldBeNil)
			So(s, ShouldEqual, "at1;Müller;")
		})

		Convey("When UTF-16LE with a BOM arrives at a UTF-8 decoder", func() {
			d, err := udp.NewDecoder("")
			So(err, ShouldBeNil)
			s, err := d.Decode([]byte{0xFF, 0xFE, 'r', 0, 'n', 0, 'd', 0})
			So(err, ShouldBeNil)
			So(s, ShouldEqual, "rnd")
		})

		Convey("When UTF-8 is invalid", func() {
			d, _ := udp.NewDecoder("utf-8")
			_, err := d.Decode([]byte{0xC3, 0x28})
			So(errors.Is(err, udp.ErrDecode), ShouldBeTrue)
		})
	})
}

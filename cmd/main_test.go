package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pss/internal/adapters/udp"
	"github.com/okian/pss/internal/config"
	"github.com/okian/pss/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.Addr = "127.0.0.1:0"
	cfg.UDPBind = "127.0.0.1"
	cfg.UDPPort = 0
	cfg.WatchGrammar = false
	cfg.DBPath = filepath.Join(t.TempDir(), "pss.db")
	return cfg
}

func TestRun(t *testing.T) {
	convey.Convey("Given the daemon entry point", t, func() {
		cfg := testConfig(t)
		ctx, cancel := context.WithCancel(context.Background())

		addrs := make(chan net.Addr, 1)
		finished := make(chan struct{})
		var runErr error
		go func() {
			defer close(finished)
			runErr = run(ctx, cfg, logger.Get(), func(a net.Addr) { addrs <- a })
		}()

		var addr net.Addr
		select {
		case addr = <-addrs:
		case <-finished:
			t.Fatalf("run exited early: %v", runErr)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not become ready")
		}

		convey.Convey("When the operator API is queried", func() {
			resp, err := http.Get("http://" + addr.String() + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			convey.Convey("Then the engine should report healthy", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When the context is canceled", func() {
			cancel()

			convey.Convey("Then run should return cleanly", func() {
				select {
				case <-finished:
					convey.So(runErr, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					t.Fatal("run did not return after cancel")
				}
			})
		})

		convey.Reset(func() {
			cancel()
			<-finished
		})
	})
}

func TestRunBindFailure(t *testing.T) {
	convey.Convey("Given the datagram port is already taken", t, func() {
		busy, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		convey.So(err, convey.ShouldBeNil)
		defer busy.Close()

		cfg := testConfig(t)
		cfg.UDPPort = busy.LocalAddr().(*net.UDPAddr).Port

		convey.Convey("When the daemon starts", func() {
			err := run(context.Background(), cfg, logger.Get(), nil)

			convey.Convey("Then startup should fail with a bind error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, udp.ErrBind), convey.ShouldBeTrue)
			})
		})
	})
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pss/internal/adapters/repository"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/testevents"
	"github.com/okian/pss/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// execute runs the root command with args and returns stdout.
func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pss.db")
	ctx := context.Background()
	store, err := repository.Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []*model.ParsedEvent{
		{ID: "e-1", SessionID: "s-1", EventCode: "pt1", ProtocolVersion: "2.3", Status: model.StatusRecognized,
			Confidence: 1, ReceivedAt: at, RawText: "pt1;3;", ProcessingTime: time.Millisecond},
		{ID: "e-2", SessionID: "s-1", EventCode: "zzz", ProtocolVersion: "2.3", Status: model.StatusUnknown,
			ReceivedAt: at.Add(time.Second), RawText: "zzz;9;", ProcessingTime: time.Millisecond},
	}
	for _, ev := range events {
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("save event: %v", err)
		}
	}
	if err := store.UpsertUnknown(ctx, model.UnknownEventRecord{
		PatternHash: "h1", Pattern: "zzz;<num>;", RawPattern: "zzz;9;", OccurrenceCount: 1,
		FirstSeen: at, LastSeen: at,
	}); err != nil {
		t.Fatalf("upsert unknown: %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		cmd := newRootCommand()

		convey.Convey("Then every subcommand is registered", func() {
			for _, name := range []string{"send", "unknowns", "events", "stats", "reclassify", "match"} {
				sub, _, err := cmd.Find([]string{name})
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.Name(), convey.ShouldEqual, name)
			}
		})

		convey.Convey("Then the global flags have defaults", func() {
			convey.So(cmd.PersistentFlags().Lookup("db").DefValue, convey.ShouldEqual, "pss.db")
			convey.So(cmd.PersistentFlags().Lookup("format").DefValue, convey.ShouldEqual, "text")
		})

		convey.Convey("When the format is invalid", func() {
			_, err := execute("events", "--format", "xml")

			convey.Convey("Then the command fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "invalid format")
			})
		})
	})
}

func TestStoreCommands(t *testing.T) {
	convey.Convey("Given a seeded database", t, func() {
		db := seedStore(t)

		convey.Convey("When listing unknowns as JSON", func() {
			out, err := execute("unknowns", "--db", db, "--format", "json")
			convey.So(err, convey.ShouldBeNil)

			var recs []model.UnknownEventRecord
			convey.So(json.Unmarshal([]byte(out), &recs), convey.ShouldBeNil)

			convey.Convey("Then the stored pattern is returned", func() {
				convey.So(recs, convey.ShouldHaveLength, 1)
				convey.So(recs[0].PatternHash, convey.ShouldEqual, "h1")
			})
		})

		convey.Convey("When listing events by status", func() {
			out, err := execute("events", "--db", db, "--status", "Unknown")

			convey.Convey("Then only matching events are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "zzz;9;")
				convey.So(out, convey.ShouldNotContainSubstring, "pt1;3;")
			})
		})

		convey.Convey("When the status filter is not a status", func() {
			_, err := execute("events", "--db", db, "--status", "bogus")
			convey.So(errors.Is(err, model.ErrInvalidStatus), convey.ShouldBeTrue)
		})

		convey.Convey("When showing stats without a session", func() {
			out, err := execute("stats", "--db", db)

			convey.Convey("Then the most recent session is used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "s-1")
				convey.So(out, convey.ShouldContainSubstring, "total:")
			})
		})

		convey.Convey("When reclassifying an event", func() {
			out, err := execute("reclassify", "e-2", "--db", db, "--status", "partial", "--reason", "new firmware code")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "partial")

			convey.Convey("Then the same change again is rejected", func() {
				_, err := execute("reclassify", "e-2", "--db", db, "--status", "partial", "--reason", "again")
				convey.So(errors.Is(err, model.ErrSameStatus), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When reclassifying without a reason", func() {
			_, err := execute("reclassify", "e-2", "--db", db, "--status", "partial")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When no match snapshot is stored", func() {
			_, err := execute("match", "--db", db)
			convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a database path that does not exist", t, func() {
		db := filepath.Join(t.TempDir(), "missing.db")
		_, err := execute("events", "--db", db)

		convey.Convey("Then the command fails without creating it", func() {
			convey.So(errors.Is(err, errNoDatabase), convey.ShouldBeTrue)
			_, statErr := os.Stat(db)
			convey.So(os.IsNotExist(statErr), convey.ShouldBeTrue)
		})
	})
}

func TestSendCommand(t *testing.T) {
	convey.Convey("Given a UDP listener", t, func() {
		conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() { conn.Close() })

		convey.Convey("When sending fuzz datagrams", func() {
			out, err := execute("send", "--mode", "fuzz", "--count", "3", "--seed", "7", "--addr", conn.LocalAddr().String())

			convey.Convey("Then the run statistics are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "generated:")
				convey.So(out, convey.ShouldContainSubstring, "sent:")
			})
		})

		convey.Convey("When the mode is unknown", func() {
			_, err := execute("send", "--mode", "chaos", "--addr", conn.LocalAddr().String())
			convey.So(errors.Is(err, testevents.ErrUnknownMode), convey.ShouldBeTrue)
		})
	})
}

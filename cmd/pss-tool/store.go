package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/pss/internal/adapters/repository"
	"github.com/okian/pss/internal/domain/model"
)

var errNoDatabase = errors.New("database not found")

// withStore opens an existing database for the duration of fn.
func withStore(ctx context.Context, path string, fn func(*repository.Store) error) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", errNoDatabase, path)
	}
	store, err := repository.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newUnknownsCommand(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unknowns",
		Short: "List unknown message patterns, most frequent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root.DB, func(s *repository.Store) error {
				recs, err := s.ListUnknowns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), root.Format, recs, func(p *printer) {
					p.header("HASH", "COUNT", "PATTERN", "LAST SEEN", "SUGGESTED")
					for _, r := range recs {
						p.cols(r.PatternHash, r.OccurrenceCount, r.Pattern, r.LastSeen.Format(timeLayout), r.SuggestedEventCode)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum patterns (0 = all)")
	return cmd
}

func newEventsCommand(root *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st model.RecognitionStatus
			if status != "" {
				var err error
				if st, err = model.ParseStatus(status); err != nil {
					return err
				}
			}
			return withStore(cmd.Context(), root.DB, func(s *repository.Store) error {
				events, err := s.EventsByStatus(cmd.Context(), st, limit)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), root.Format, events, func(p *printer) {
					p.header("ID", "RECEIVED", "CODE", "STATUS", "CONFIDENCE", "RAW")
					for _, ev := range events {
						p.cols(ev.ID, ev.ReceivedAt.Format(timeLayout), ev.EventCode, ev.Status,
							fmt.Sprintf("%.2f", ev.Confidence), ev.RawText)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "recognized|partial|deprecated|unknown (default all)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events")
	return cmd
}

func newStatsCommand(root *rootOptions) *cobra.Command {
	var (
		session string
		top     int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics for a stored session",
		Long:  "Show statistics for a stored session. Without --session the most recent one is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root.DB, func(s *repository.Store) error {
				id := session
				if id == "" {
					sessions, err := s.Sessions(cmd.Context())
					if err != nil {
						return err
					}
					if len(sessions) == 0 {
						return fmt.Errorf("no sessions: %w", repository.ErrNotFound)
					}
					id = sessions[0]
				}
				snap, err := s.SessionStatistics(cmd.Context(), id, top)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), root.Format, snap, func(p *printer) {
					p.row("session", snap.SessionID)
					p.row("started", snap.StartedAt.Format(timeLayout))
					p.row("total", snap.Total)
					for _, st := range model.Statuses {
						p.row(string(st), snap.ByStatus[st])
					}
					p.row("avg processing", snap.Timing.Average)
					for _, e := range snap.TopErrors {
						p.row("error", fmt.Sprintf("%d x %s", e.Count, e.Message))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id (default most recent)")
	cmd.Flags().IntVar(&top, "top", 10, "size of the error table")
	return cmd
}

func newReclassifyCommand(root *rootOptions) *cobra.Command {
	var (
		status string
		reason string
		by     string
	)
	cmd := &cobra.Command{
		Use:   "reclassify <event-id>",
		Short: "Change a stored event's recognition status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := model.ParseStatus(status)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), root.DB, func(s *repository.Store) error {
				rec, err := s.Reclassify(cmd.Context(), model.ReclassifyRequest{
					EventID:   args[0],
					NewStatus: st,
					ChangedBy: by,
					Reason:    reason,
				})
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), root.Format, rec, func(p *printer) {
					p.row("event", rec.EventID)
					p.row("from", rec.OldStatus)
					p.row("to", rec.NewStatus)
					p.row("by", rec.ChangedBy)
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&reason, "reason", "", "why the status changes")
	cmd.Flags().StringVar(&by, "by", "", "operator name (default operator)")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newMatchCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Show the last stored match state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), root.DB, func(s *repository.Store) error {
				st, err := s.LatestMatchSnapshot(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), root.Format, st, func(p *printer) {
					p.row("generation", st.Generation)
					p.row("fight state", st.FightState)
					if st.CurrentRound != nil {
						p.row("round", *st.CurrentRound)
					}
					if st.CurrentTime != nil {
						p.row("clock", st.CurrentTime.String())
					}
					p.row("athlete 1 points", st.Athlete1.PointsTotal())
					p.row("athlete 2 points", st.Athlete2.PointsTotal())
					p.row("manual override", st.ManualOverrideActive)
				})
			})
		},
	}
}

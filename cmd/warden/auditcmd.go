package main

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/cli"
)

var auditFlags struct {
	groupID   int64
	userID    int64
	eventType string
	limit     int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the enforcement audit trail",
	Long: `Query the enforcement audit trail.

Reading events back requires the sqlite audit sink. The log and nats sinks
forward events elsewhere and keep nothing locally.`,
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent audit events",
	Long: `Show the most recent audit events, newest first.

Examples:
  # Last 50 events
  warden audit recent

  # Mutes in one group
  warden audit recent --group -100123456 --type restricted

  # Everything that happened to one user, as JSON
  warden audit recent --user 42 --output json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadOfflineConfig()
		if err != nil {
			return err
		}
		if cfg.Audit.Sink != "sqlite" {
			return cli.NewConfigError("audit.sink", "audit recent needs the sqlite sink, configured sink is "+strconv.Quote(cfg.Audit.Sink))
		}
		f, err := formatter()
		if err != nil {
			return err
		}

		sink, err := audit.NewSQLiteSink(cfg.Audit.SQLite.Path, cfg.Audit.SQLite.BusyTimeout)
		if err != nil {
			return cli.NewCommandError("audit recent", err)
		}
		defer sink.Close()

		q := audit.Query{
			GroupID: auditFlags.groupID,
			UserID:  auditFlags.userID,
			Type:    audit.Type(auditFlags.eventType),
			Limit:   auditFlags.limit,
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := recentEvents(ctx, sink, cmd.OutOrStdout(), f, q); err != nil {
			return cli.NewCommandError("audit recent", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRecentCmd)

	auditRecentCmd.Flags().Int64Var(&auditFlags.groupID, "group", 0, "only events in this group")
	auditRecentCmd.Flags().Int64Var(&auditFlags.userID, "user", 0, "only events about this user")
	auditRecentCmd.Flags().StringVar(&auditFlags.eventType, "type", "", "only events of this type, e.g. restricted, unmuted, expired")
	auditRecentCmd.Flags().IntVar(&auditFlags.limit, "limit", 50, "maximum number of events")
}

type eventList []audit.Event

func (l eventList) Header() []string {
	return []string{"TIME", "TYPE", "GROUP", "USER", "ACTOR", "DETAIL"}
}

func (l eventList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, e := range l {
		rows[i] = []string{
			e.Time.UTC().Format(time.RFC3339),
			string(e.Type),
			idOrDash(e.GroupID),
			idOrDash(e.UserID),
			idOrDash(e.ActorID),
			detail(e.Detail),
		}
	}
	return rows
}

func idOrDash(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func detail(d map[string]string) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + d[k]
	}
	return strings.Join(parts, " ")
}

func recentEvents(ctx context.Context, q audit.Querier, w io.Writer, f cli.Formatter, query audit.Query) error {
	events, err := q.Recent(ctx, query)
	if err != nil {
		return err
	}
	return f.FormatTo(w, eventList(events))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/cli"
	"joinguard-hq/warden/pkg/store"
)

var policyFlags struct {
	mute time.Duration
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit group join requirements",
	Long: `Inspect and edit group join requirements directly in the policy store.

These commands work offline: they do not contact the Bot API, so "set" cannot
check that the bot administers the channels. Prefer /fsub in the group when
the bot is running.

Subcommands:
  list    - List every group with a requirement
  get     - Show one group's requirement
  set     - Create or replace a group's requirement
  delete  - Remove a group's requirement

Examples:
  warden policy list --output json
  warden policy get -100123456
  warden policy set -100123456 @news https://t.me/blog --mute 10m
  warden policy delete -100123456`,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every group with a requirement",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, args []string) error {
		return listPolicies(ctx, b, w, f)
	}),
}

var policyGetCmd = &cobra.Command{
	Use:   "get GROUP_ID",
	Short: "Show one group's requirement",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, args []string) error {
		groupID, err := parseGroupID(args[0])
		if err != nil {
			return err
		}
		return getPolicy(ctx, b, w, f, groupID)
	}),
}

var policySetCmd = &cobra.Command{
	Use:   "set GROUP_ID CHANNEL...",
	Short: "Create or replace a group's requirement",
	Args:  cobra.MinimumNArgs(2),
	RunE: withStore(func(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, args []string) error {
		groupID, err := parseGroupID(args[0])
		if err != nil {
			return err
		}
		return setPolicy(ctx, b, w, f, groupID, args[1:], policyFlags.mute)
	}),
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete GROUP_ID",
	Short: "Remove a group's requirement",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, args []string) error {
		groupID, err := parseGroupID(args[0])
		if err != nil {
			return err
		}
		return deletePolicy(ctx, b, w, groupID)
	}),
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyGetCmd, policySetCmd, policyDeleteCmd)

	policySetCmd.Flags().DurationVar(&policyFlags.mute, "mute", 0, "mute duration, 0 uses the configured default")
}

type storeFunc func(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, args []string) error

// withStore opens the configured policy store around fn.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadOfflineConfig()
		if err != nil {
			return err
		}
		f, err := formatter()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := store.Open(ctx, store.ConfigFrom(cfg.Storage))
		if err != nil {
			return cli.NewCommandError(cmd.CommandPath(), err)
		}
		defer b.Close()

		if err := fn(ctx, b, cmd.OutOrStdout(), f, args); err != nil {
			return cli.NewCommandError(cmd.CommandPath(), err)
		}
		return nil
	}
}

func parseGroupID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid group id %q", s)
	}
	return id, nil
}

// policyView is the printable form of a policy.
type policyView struct {
	GroupID      int64            `json:"group_id" yaml:"group_id"`
	Channels     []string         `json:"channels" yaml:"channels"`
	ChannelIDs   map[string]int64 `json:"channel_ids,omitempty" yaml:"channel_ids,omitempty"`
	MuteDuration string           `json:"mute_duration,omitempty" yaml:"mute_duration,omitempty"`
	UpdatedBy    int64            `json:"updated_by,omitempty" yaml:"updated_by,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at" yaml:"updated_at"`
}

func viewOf(p *store.GroupPolicy) policyView {
	v := policyView{
		GroupID:    p.GroupID,
		Channels:   channel.Strings(p.Channels),
		ChannelIDs: p.ChannelIDs,
		UpdatedBy:  p.UpdatedBy,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.MuteDuration > 0 {
		v.MuteDuration = p.MuteDuration.String()
	}
	return v
}

type policyList []policyView

func (l policyList) Header() []string {
	return []string{"GROUP", "CHANNELS", "MUTE", "UPDATED"}
}

func (l policyList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, v := range l {
		mute := v.MuteDuration
		if mute == "" {
			mute = "default"
		}
		updated := "-"
		if !v.UpdatedAt.IsZero() {
			updated = v.UpdatedAt.UTC().Format(time.RFC3339)
		}
		rows[i] = []string{strconv.FormatInt(v.GroupID, 10), strings.Join(v.Channels, ","), mute, updated}
	}
	return rows
}

func listPolicies(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter) error {
	groups, err := b.ListGroups(ctx)
	if err != nil {
		return err
	}
	list := make(policyList, 0, len(groups))
	for _, id := range groups {
		p, err := b.GetPolicy(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		list = append(list, viewOf(p))
	}
	return f.FormatTo(w, list)
}

func getPolicy(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, groupID int64) error {
	p, err := b.GetPolicy(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("group %d has no join requirement", groupID)
	}
	if err != nil {
		return err
	}
	return f.FormatTo(w, policyList{viewOf(p)})
}

func setPolicy(ctx context.Context, b store.Backend, w io.Writer, f cli.Formatter, groupID int64, channels []string, mute time.Duration) error {
	refs, err := channel.ParseList(channels)
	if err != nil {
		return err
	}
	p := &store.GroupPolicy{
		GroupID:      groupID,
		Channels:     refs,
		MuteDuration: mute,
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := b.SetPolicy(ctx, p); err != nil {
		return err
	}
	return getPolicy(ctx, b, w, f, groupID)
}

func deletePolicy(ctx context.Context, b store.Backend, w io.Writer, groupID int64) error {
	existed, err := b.DeletePolicy(ctx, groupID)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("group %d has no join requirement", groupID)
	}
	_, err = fmt.Fprintf(w, "✓ Removed join requirement for group %d\n", groupID)
	return err
}

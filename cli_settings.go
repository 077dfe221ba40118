package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Aide/pkg/settings"
	"Aide/pkg/types"
)

// ========================================
// aide settings
// ========================================

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write settings",
		Long: `Read and write the settings file. A running "aide run" picks up
changes within a second.

Keys: auto_reply_enabled, auto_reply_delay, auto_reply_in_group,
auto_answer_video, auto_answer_delay, message_monitor_enabled,
log_messages, tts_enabled, use_whitelist, whitelist, blacklist,
announce_url, poll_interval_ms, audit_retention_days`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()

				v, ok := NewMCPBridge(app).GetSetting(args[0])
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not set (default applies)\n", args[0])
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write one setting; JSON values are kept, anything else is a string",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()

				if err := NewMCPBridge(app).SetSetting(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a setting so its default applies",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()
				return app.Settings().Delete(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every stored setting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()

				bridge := NewMCPBridge(app)
				for _, k := range app.Settings().Keys() {
					if k == settings.KeyReplyRules {
						fmt.Fprintf(cmd.OutOrStdout(), "%s = (%d rules, see \"aide rules list\")\n", k, len(app.ListRules()))
						continue
					}
					v, _ := bridge.GetSetting(k)
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, v)
				}
				return nil
			},
		},
	)
	return cmd
}

// ========================================
// aide calibrate
// ========================================

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Manage fallback tap coordinates",
		Long: `Calibrated coordinates are tapped when no UI node can be found.
Names: ` + strings.Join(settings.CoordinateNames, ", "),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name> <x> <y>",
			Short: "Calibrate one coordinate",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := args[0]
				if !settings.IsCoordinateName(name) {
					return fmt.Errorf("unknown coordinate %q (known: %s)", name, strings.Join(settings.CoordinateNames, ", "))
				}
				x, errX := strconv.Atoi(args[1])
				y, errY := strconv.Atoi(args[2])
				if errX != nil || errY != nil || x < 0 || y < 0 {
					return fmt.Errorf("coordinates must be non-negative integers")
				}

				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()

				if err := app.Settings().SetCoordinate(name, types.Point{X: x, Y: y}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (%d, %d)\n", name, x, y)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every coordinate",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()

				coords := app.Settings().Coordinates()
				for _, name := range settings.CoordinateNames {
					if p, ok := coords[name]; ok {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: (%d, %d)\n", name, p.X, p.Y)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: not set\n", name)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear [name...]",
			Short: "Forget the named coordinates, or all of them",
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, name := range args {
					if !settings.IsCoordinateName(name) {
						return fmt.Errorf("unknown coordinate %q", name)
					}
				}
				app, err := openApp(cmd)
				if err != nil {
					return err
				}
				defer app.Shutdown()
				return app.Settings().ClearCoordinates(args...)
			},
		},
	)
	return cmd
}

// ========================================
// aide history
// ========================================

func newHistoryCmd() *cobra.Command {
	var (
		kinds    []string
		outcomes []string
		since    time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded reply, answer and dial attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			q := types.AttemptQuery{Kinds: kinds, Outcomes: outcomes, Limit: limit}
			if since > 0 {
				q.StartTime = time.Now().Add(-since).UnixMilli()
			}
			res, err := app.QueryAttempts(q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(res.Attempts) == 0 {
				fmt.Fprintln(out, "No attempts recorded")
				return nil
			}
			for _, r := range res.Attempts {
				line := fmt.Sprintf("%s  %-10s %-22s %6dms",
					time.UnixMilli(r.StartedAt).Format("2006-01-02 15:04:05"), r.Kind, r.Outcome, r.DurationMs)
				if r.Winner != "" {
					line += "  via " + r.Winner
				}
				if r.RuleID != "" {
					line += "  rule " + r.RuleID
				}
				if r.Source != "" {
					line += "  from " + r.Source
				}
				fmt.Fprintln(out, line)
			}
			if res.HasMore {
				fmt.Fprintf(out, "(%d of %d shown)\n", len(res.Attempts), res.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "filter by kind: sendReply, answerCall, dial")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "filter by outcome: succeeded, allStrategiesExhausted")
	cmd.Flags().DurationVar(&since, "since", 0, "only attempts newer than this, e.g. 24h")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}

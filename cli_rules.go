package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"Aide/pkg/autoreply"
)

// ========================================
// aide rules
// ========================================

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage auto-reply rules",
	}
	cmd.AddCommand(
		newRulesListCmd(),
		newRulesAddCmd(),
		newRulesRemoveCmd(),
		newRulesResetCmd(),
		newRulesImportCmd(),
		newRulesExportCmd(),
	)
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the reply rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			out := cmd.OutOrStdout()
			rules := app.ListRules()
			if len(rules) == 0 {
				fmt.Fprintln(out, "No reply rules configured")
				return nil
			}
			for i, r := range rules {
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%d. %s [%s, %s, priority %d, %s]\n   Keywords: %s\n   Reply: %s\n",
					i+1, r.ID, r.MatchType, r.Scope, r.Priority, state, strings.Join(r.Keywords, ", "), r.Reply)
			}
			return nil
		},
	}
}

func newRulesAddCmd() *cobra.Command {
	var (
		rule      autoreply.Rule
		matchType string
		scope     string
		disabled  bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule, or replace the rule with the same id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule.MatchType = autoreply.ParseMatchType(matchType)
			rule.Scope = autoreply.ParseScope(scope)
			rule.Enabled = !disabled

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if err := app.SaveRule(rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved rule %s\n", rule.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rule.ID, "id", "", "rule id (required)")
	cmd.Flags().StringSliceVar(&rule.Keywords, "keywords", nil, "comma separated keywords (required)")
	cmd.Flags().StringVar(&rule.Reply, "reply", "", "reply text (required)")
	cmd.Flags().StringVar(&matchType, "match", "contains", "contains, exact or regex")
	cmd.Flags().StringVar(&scope, "scope", "all", "all, private or group")
	cmd.Flags().IntVar(&rule.Priority, "priority", 1, "higher priority rules are tried first")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "save the rule disabled")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("keywords")
	cmd.MarkFlagRequired("reply")
	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			removed, err := app.RemoveRule(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("rule %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed rule %s\n", args[0])
			return nil
		},
	}
}

func newRulesResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace every rule with the default rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if err := app.ResetRules(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d default rules\n", len(autoreply.DefaultRules()))
			return nil
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import rules from a YAML file",
		Long: `Import rules from a YAML file in the format written by "rules export".
Rules are merged by id unless --replace is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			imported, err := autoreply.ParseRulesYAML(data)
			if err != nil {
				return err
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			rules := imported
			if !replace {
				rules = app.ListRules()
				for _, r := range imported {
					rules = autoreply.Upsert(rules, r)
				}
			}
			if err := app.Settings().SetRules(rules); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rule(s), %d configured\n", len(imported), len(rules))
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "drop existing rules first")
	return cmd
}

func newRulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.yaml]",
		Short: "Export the rules as YAML (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			data, err := autoreply.MarshalRulesYAML(app.ListRules())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported rules to %s\n", args[0])
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"Aide/pkg/uitree"
)

// ========================================
// aide devices / dump / dial
// ========================================

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected Android devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			devices, err := app.GetDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices connected")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", d.ID, d.State, d.Model, d.Type)
			}
			return nil
		},
	}
}

func newDumpCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the current UI hierarchy",
		Long: `Print the node tree of the screen currently shown on the device.
Useful to find ids and labels when WeChat changes its layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			tree, err := app.DumpHierarchy(depth)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", uitree.PrintDepth, "maximum depth to print")
	return cmd
}

func newDialCmd() *cobra.Command {
	var voice bool
	cmd := &cobra.Command{
		Use:   "dial <contact>",
		Short: "Place a WeChat video call (or voice call with --voice)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()
			app.ctx = ctx

			res, err := app.Dial(args[0], !voice)
			if res != nil {
				for _, s := range res.Steps {
					line := fmt.Sprintf("%-14s %s", s.Step, s.Outcome)
					if s.Winner != "" {
						line += " via " + s.Winner
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Call to %s placed\n", res.Contact)
			return nil
		},
	}
	cmd.Flags().BoolVar(&voice, "voice", false, "place a voice call instead of a video call")
	return cmd
}

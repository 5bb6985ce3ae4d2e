package main

import (
	"github.com/spf13/cobra"
)

func newSourceCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Inspect per-source statistics",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats <source-hash>",
			Short: "Show the counters of a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := c.client()
				if err != nil {
					return err
				}
				stats, err := client.GetSourceStats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), stats)
			},
		},
		&cobra.Command{
			Use:   "reputation <source-hash>",
			Short: "Show the reputation score of a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := c.client()
				if err != nil {
					return err
				}
				score, err := client.GetSourceReputation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]any{"source_hash": args[0], "reputation": score})
			},
		},
	)
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show registry-wide counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			totals, err := client.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), totals)
		},
	}
}

func newOwnerCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "owner",
		Short: "Show the registry owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			owner, err := client.Owner(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]string{"owner": owner})
		},
	}
}

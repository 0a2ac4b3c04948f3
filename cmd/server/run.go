package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze one group and print its free-rider report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.security.ValidateIdentifier("group", groupID); err != nil {
				return err
			}

			report, err := a.service.Run(ctx, groupID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "ID of the group to analyze")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

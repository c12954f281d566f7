package main

import (
	"github.com/spf13/cobra"
)

func init() {
	var kindFlag, keyFlag string
	var waitFlag bool

	runCmd := &cobra.Command{
		Use:   "run USER_ID",
		Short: "Trigger a matching run for a user in a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"userId": args[0],
				"scope":  map[string]string{"kind": kindFlag, "key": keyFlag},
				"wait":   waitFlag,
			}
			resp, err := client().R().SetBody(payload).Post("/v0/matching/runs")
			return printResponse(resp, err)
		},
	}
	runCmd.Flags().StringVarP(&kindFlag, "kind", "k", "global", "Scope kind (event, community, city, global, cross_community)")
	runCmd.Flags().StringVarP(&keyFlag, "key", "K", "", "Scope key (event id, community id or city)")
	runCmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "Run synchronously and print the run result")

	rootCmd.AddCommand(runCmd)
}

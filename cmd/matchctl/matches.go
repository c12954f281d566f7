package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	matchesCmd := &cobra.Command{Use: "matches", Short: "Match list and lifecycle operations"}

	// top
	var kindFlag, keyFlag string
	var limitFlag int
	topCmd := &cobra.Command{
		Use:   "top USER_ID",
		Short: "List a user's top matches in a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().
				SetQueryParam("kind", kindFlag).
				SetQueryParam("key", keyFlag).
				SetQueryParam("limit", strconv.Itoa(limitFlag)).
				Get("/v0/users/" + args[0] + "/matches")
			return printResponse(resp, err)
		},
	}
	topCmd.Flags().StringVarP(&kindFlag, "kind", "k", "global", "Scope kind (event, community, city, global, cross_community)")
	topCmd.Flags().StringVarP(&keyFlag, "key", "K", "", "Scope key (event id, community id or city)")
	topCmd.Flags().IntVarP(&limitFlag, "limit", "n", 10, "Maximum matches to return")
	matchesCmd.AddCommand(topCmd)

	// unnotified
	unnotifiedCmd := &cobra.Command{
		Use:   "unnotified USER_ID",
		Short: "List matches the user has not been told about yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().Get("/v0/users/" + args[0] + "/matches/unnotified")
			return printResponse(resp, err)
		},
	}
	matchesCmd.AddCommand(unnotifiedCmd)

	// accept / decline
	for _, status := range []string{"accepted", "declined"} {
		status := status
		use := "accept MATCH_ID"
		short := "Accept a pending match"
		if status == "declined" {
			use = "decline MATCH_ID"
			short = "Decline a pending match"
		}
		matchesCmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client().R().
					SetBody(map[string]string{"status": status}).
					Post("/v0/matches/" + args[0] + "/status")
				return printResponse(resp, err)
			},
		})
	}

	// notified
	var userFlag string
	notifiedCmd := &cobra.Command{
		Use:   "notified MATCH_ID",
		Short: "Mark one side of a match as notified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().
				SetBody(map[string]string{"userId": userFlag}).
				Post("/v0/matches/" + args[0] + "/notified")
			return printResponse(resp, err)
		},
	}
	notifiedCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID (required)")
	_ = notifiedCmd.MarkFlagRequired("user")
	matchesCmd.AddCommand(notifiedCmd)

	// feedback
	var fbUserFlag, fbFlag string
	feedbackCmd := &cobra.Command{
		Use:   "feedback MATCH_ID",
		Short: "Record good/bad feedback for one side of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().
				SetBody(map[string]string{"userId": fbUserFlag, "feedback": fbFlag}).
				Post("/v0/matches/" + args[0] + "/feedback")
			return printResponse(resp, err)
		},
	}
	feedbackCmd.Flags().StringVarP(&fbUserFlag, "user", "u", "", "User ID (required)")
	feedbackCmd.Flags().StringVarP(&fbFlag, "feedback", "f", "", "good or bad (required)")
	_ = feedbackCmd.MarkFlagRequired("user")
	_ = feedbackCmd.MarkFlagRequired("feedback")
	matchesCmd.AddCommand(feedbackCmd)

	rootCmd.AddCommand(matchesCmd)
}

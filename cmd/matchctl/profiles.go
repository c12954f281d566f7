package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	profilesCmd := &cobra.Command{Use: "profiles", Short: "Profile operations"}

	// put
	var fileFlag string
	putCmd := &cobra.Command{
		Use:   "put USER_ID",
		Short: "Create or update a profile from a JSON file (or stdin with -)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if fileFlag == "-" {
				raw, err = os.ReadFile("/dev/stdin")
			} else {
				raw, err = os.ReadFile(fileFlag)
			}
			if err != nil {
				return err
			}
			var payload map[string]interface{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("profile must be a JSON object: %w", err)
			}
			resp, err := client().R().SetBody(payload).Put("/v0/profiles/" + args[0])
			return printResponse(resp, err)
		},
	}
	putCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Path to profile JSON (required)")
	_ = putCmd.MarkFlagRequired("file")
	profilesCmd.AddCommand(putCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get USER_ID",
		Short: "Get a profile by user ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().Get("/v0/profiles/" + args[0])
			return printResponse(resp, err)
		},
	}
	profilesCmd.AddCommand(getCmd)

	// embed
	embedCmd := &cobra.Command{
		Use:   "embed USER_ID",
		Short: "Generate and store embedding vectors for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().R().Post("/v0/profiles/" + args[0] + "/embeddings")
			return printResponse(resp, err)
		},
	}
	profilesCmd.AddCommand(embedCmd)

	// backfill
	backfillCmd := &cobra.Command{
		Use:   "backfill USER_ID...",
		Short: "Generate embeddings for many profiles, continuing past failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			failures := 0
			for _, userID := range args {
				resp, err := c.R().Post("/v0/profiles/" + userID + "/embeddings")
				if err != nil || resp.IsError() {
					failures++
					detail := ""
					if err != nil {
						detail = err.Error()
					} else {
						detail = fmt.Sprintf("http %d", resp.StatusCode())
					}
					fmt.Fprintf(os.Stderr, "%s: %s\n", userID, detail)
					continue
				}
				fmt.Fprintf(os.Stdout, "%s: ok\n", userID)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d profiles failed", failures, len(args))
			}
			return nil
		},
	}
	profilesCmd.AddCommand(backfillCmd)

	rootCmd.AddCommand(profilesCmd)
}

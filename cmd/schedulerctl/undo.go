package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type undoPlanResponse struct {
	Message          string   `json:"message"`
	PlanID           string   `json:"planId"`
	RevertedCaptures []string `json:"revertedCaptures"`
}

var undoCmd = &cobra.Command{
	Use:   "undo <planID>",
	Short: "Revert every action in a plan and restore the prior calendar state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planID := args[0]

		var resp undoPlanResponse
		path := fmt.Sprintf("/api/v1/plans/%s/undo", planID)
		if err := newAPIClient().do("POST", path, nil, &resp); err != nil {
			return err
		}

		fmt.Println(resp.Message)
		fmt.Printf("  plan:     %s\n", resp.PlanID)
		fmt.Printf("  reverted: %d captures\n", len(resp.RevertedCaptures))
		for _, id := range resp.RevertedCaptures {
			fmt.Printf("    - %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	scheduleAction         string
	schedulePreferredStart string
	scheduleAllowOverlap   bool
	scheduleTimezone       string
)

type scheduleCaptureRequest struct {
	Action         string     `json:"action"`
	PreferredStart *time.Time `json:"preferredStart,omitempty"`
	AllowOverlap   bool       `json:"allowOverlap,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
}

type captureView struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	Status          string     `json:"status"`
	PlannedStart    *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd      *time.Time `json:"plannedEnd,omitempty"`
	RescheduleCount int        `json:"rescheduleCount"`
}

type scheduleCaptureResponse struct {
	Message string      `json:"message"`
	Capture captureView `json:"capture"`
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <captureID>",
	Short: "Trigger a schedule run for a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		captureID := args[0]

		req := scheduleCaptureRequest{
			Action:       scheduleAction,
			AllowOverlap: scheduleAllowOverlap,
			Timezone:     scheduleTimezone,
		}
		if schedulePreferredStart != "" {
			t, err := time.Parse(time.RFC3339, schedulePreferredStart)
			if err != nil {
				return fmt.Errorf("invalid --preferred-start, want RFC3339: %w", err)
			}
			req.PreferredStart = &t
		}

		var resp scheduleCaptureResponse
		path := fmt.Sprintf("/api/v1/captures/%s/schedule-capture", captureID)
		if err := newAPIClient().do("POST", path, req, &resp); err != nil {
			return err
		}

		fmt.Println(resp.Message)
		fmt.Printf("  capture:  %s\n", resp.Capture.ID)
		fmt.Printf("  status:   %s\n", resp.Capture.Status)
		if resp.Capture.PlannedStart != nil && resp.Capture.PlannedEnd != nil {
			fmt.Printf("  planned:  %s - %s\n",
				resp.Capture.PlannedStart.Format(time.RFC3339),
				resp.Capture.PlannedEnd.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleAction, "action", "schedule", "schedule | reschedule | complete")
	scheduleCmd.Flags().StringVar(&schedulePreferredStart, "preferred-start", "", "preferred start time, RFC3339")
	scheduleCmd.Flags().BoolVar(&scheduleAllowOverlap, "allow-overlap", false, "allow overlapping calendar events")
	scheduleCmd.Flags().StringVar(&scheduleTimezone, "timezone", "", "IANA timezone name")
	rootCmd.AddCommand(scheduleCmd)
}

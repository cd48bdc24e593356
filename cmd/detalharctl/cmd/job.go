package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobResultCmd)
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		var job struct {
			JobID       string     `json:"job_id"`
			NUP         string     `json:"nup"`
			Status      string     `json:"status"`
			StatusStage string     `json:"status_stage"`
			Priority    int        `json:"priority"`
			Attempts    int        `json:"attempts"`
			MaxAttempts int        `json:"max_attempts"`
			Error       string     `json:"error,omitempty"`
			CreatedAt   time.Time  `json:"created_at"`
			FinishedAt  *time.Time `json:"finished_at,omitempty"`
		}

		client := NewAPIClient()
		if err := client.Get(fmt.Sprintf("/jobs/%s", jobID), &job); err != nil {
			fail(fmt.Sprintf("failed to get status: %v", err))
			return
		}

		fmt.Println(bold("Job Status"))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\n", cyan(job.JobID))
		fmt.Fprintf(w, "NUP:\t%s\n", job.NUP)

		statusColor := green
		switch job.Status {
		case "error":
			statusColor = red
		case "queued", "retry":
			statusColor = yellow
		}
		fmt.Fprintf(w, "Status:\t%s\n", statusColor(job.Status))
		if job.StatusStage != "" {
			fmt.Fprintf(w, "Stage:\t%s\n", job.StatusStage)
		}
		if job.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", red(job.Error))
		}
		fmt.Fprintf(w, "Attempts:\t%d/%d\n", job.Attempts, job.MaxAttempts)
		fmt.Fprintf(w, "Created:\t%s\n", job.CreatedAt.Format(time.RFC3339))
		if job.FinishedAt != nil {
			fmt.Fprintf(w, "Finished:\t%s\n", job.FinishedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

var jobResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print a done job's result_json",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		var result json.RawMessage
		client := NewAPIClient()
		if err := client.Get(fmt.Sprintf("/jobs/%s/result", jobID), &result); err != nil {
			fail(fmt.Sprintf("failed to get result: %v", err))
			return
		}

		pretty, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Println(string(result))
			return
		}
		fmt.Println(string(pretty))
	},
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringP("scope", "s", "", "case scope/sigla")
	enqueueCmd.Flags().String("chat-id", "", "originating chat id")
	enqueueCmd.Flags().String("user-id", "", "requesting user id")
	enqueueCmd.Flags().IntP("priority", "p", 0, "priority 0-9 (omit for the server default)")
	enqueueCmd.Flags().Bool("user-click", false, "mark as an interactive user_click request (escalates an active job)")
	enqueueCmd.Flags().Bool("force", false, "bypass cache/dedup and always insert a new job")
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <nup>",
	Short: "Enqueue a case for processing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nup := args[0]
		scope, _ := cmd.Flags().GetString("scope")
		chatID, _ := cmd.Flags().GetString("chat-id")
		userID, _ := cmd.Flags().GetString("user-id")
		priority, _ := cmd.Flags().GetInt("priority")
		userClick, _ := cmd.Flags().GetBool("user-click")
		force, _ := cmd.Flags().GetBool("force")

		source := "monitor"
		if userClick {
			source = "user_click"
		}

		reqBody := map[string]any{
			"nup":     nup,
			"scope":   scope,
			"chat_id": chatID,
			"user_id": userID,
			"source":  source,
			"force":   force,
		}
		// Only send priority when the flag was set explicitly; the server
		// distinguishes an absent priority (defaults to 5) from an explicit
		// priority=0 (kept as-is), so the zero value of an unset flag must
		// not be sent as a real 0.
		if cmd.Flags().Changed("priority") {
			reqBody["priority"] = priority
		}

		var resp struct {
			JobID   string `json:"job_id"`
			Status  string `json:"status"`
			Dedup   bool   `json:"dedup"`
			Message string `json:"message"`
		}

		client := NewAPIClient()
		if err := client.Post("/enqueue", reqBody, &resp); err != nil {
			fail(fmt.Sprintf("enqueue failed: %v", err))
			return
		}

		if resp.Dedup {
			info(fmt.Sprintf("%s (job %s, status %s)", resp.Message, cyan(resp.JobID), resp.Status))
			return
		}
		success(fmt.Sprintf("job queued: %s", cyan(resp.JobID)))
	},
}

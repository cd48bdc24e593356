package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.Flags().StringP("scope", "s", "", "case scope/sigla")
}

var cacheCmd = &cobra.Command{
	Use:   "cache <nup>",
	Short: "Check whether a recently finished result exists for a case",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nup := args[0]
		scope, _ := cmd.Flags().GetString("scope")

		var resp struct {
			Hit        bool   `json:"hit"`
			JobID      string `json:"job_id,omitempty"`
			FinishedAt string `json:"finished_at,omitempty"`
		}

		client := NewAPIClient()
		path := fmt.Sprintf("/nup/%s/cache", nup)
		if scope != "" {
			path += "?scope=" + scope
		}
		if err := client.Get(path, &resp); err != nil {
			fail(fmt.Sprintf("cache lookup failed: %v", err))
			return
		}

		if !resp.Hit {
			info("no cached result within TTL")
			return
		}
		success(fmt.Sprintf("cached result: job %s (finished %s)", cyan(resp.JobID), resp.FinishedAt))
	},
}

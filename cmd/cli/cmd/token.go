package cmd

import (
	"worktrack/internal/auth"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an API token and its hash",
	Long: `Generate a random API token for the daemon. Put the hash in the daemon config
as api_token_hash (or API_TOKEN_HASH) and give the token to clients as WORKTRACK_TOKEN.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		token, err := auth.GenerateToken()
		if err != nil {
			cmd.Printf("Error generating token: %s\n", err)
			return
		}
		cmd.Printf("Token: %s\n", token)
		cmd.Printf("Hash:  %s\n", auth.HashKey(token))
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"Go_Drop/internal/log"
)

var (
	serverURL string
	token     string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "pushfile",
	Short:         "Send files to a Go_Drop server",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		log.Init(&log.Config{Level: level})
	},
}

// Execute executes the root command.
func Execute() error {
	defer log.Sync()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("PUSHFILE_SERVER", "http://localhost:8000"), "server base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("PUSHFILE_TOKEN"), "bearer token, see the login command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(loginCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

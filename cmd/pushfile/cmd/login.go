package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"Go_Drop/internal/client"
)

var (
	username string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Print a token for the given credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := client.NewHTTPClient(serverURL, "").Login(cmd.Context(), username, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "user name")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = loginCmd.MarkFlagRequired("username")
	_ = loginCmd.MarkFlagRequired("password")
}

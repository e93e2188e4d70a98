package main

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/blinkchat/internal/api"
	"github.com/1ureka/blinkchat/internal/config"
	"github.com/1ureka/blinkchat/internal/util"
)

var (
	flagUsername string
	flagPassword string
	flagEmail    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		username, password := credentials()

		client := api.New(cfg.APIURL)
		tokens, err := client.Token(cmd.Context(), username, password)
		if err != nil {
			return err
		}

		me, err := client.Me(cmd.Context(), tokens.Access)
		if err != nil {
			return err
		}
		name := me.DisplayName
		if name == "" {
			name = me.Username
		}
		util.LogSuccess("logged in as %s", name)

		pterm.Println()
		pterm.Println("Add this to your environment or .env file:")
		pterm.Println(config.EnvToken + "=" + tokens.Access)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		username, password := credentials()

		acct, err := api.New(cfg.APIURL).Register(cmd.Context(), username, password, flagEmail)
		if err != nil {
			return err
		}
		util.LogSuccess("account %s created (id %d), run `blinkchat login` next", acct.Username, acct.UserID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&flagUsername, "username", "u", "", "account username (prompted if empty)")
		c.Flags().StringVarP(&flagPassword, "password", "p", "", "account password (prompted if empty)")
	}
	registerCmd.Flags().StringVar(&flagEmail, "email", "", "optional e-mail address")
}

// credentials returns the flag values, prompting for whatever is missing.
func credentials() (string, string) {
	username := strings.TrimSpace(flagUsername)
	for username == "" {
		raw, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Username").Show()
		username = strings.TrimSpace(raw)
	}

	password := flagPassword
	for password == "" {
		password, _ = pterm.DefaultInteractiveTextInput.WithDefaultText("Password").WithMask("*").Show()
	}
	pterm.Println()
	return username, password
}

package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/1ureka/blinkchat/internal/api"
	"github.com/1ureka/blinkchat/internal/app"
	"github.com/1ureka/blinkchat/internal/util"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the queue and chat with a stranger",
	Long: `Join the matchmaking queue and chat with whoever you are paired with.

Type a line to send it. Commands:
  /next                      leave the current partner and find another
  /report <reason> [details] report the current partner
  /connect                   rejoin after losing the server
  /quit                      exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return errors.New("no access token: run `blinkchat login` or set --token")
		}

		id, err := api.ParseIdentity(cfg.Token)
		switch {
		case err != nil:
			util.LogWarning("access token is not a readable JWT: %v", err)
		case id.Expired(time.Now()):
			return errors.New("access token expired: run `blinkchat login` again")
		default:
			util.LogInfo("signed in as %s", id.Username)
		}

		ctx := cmd.Context()
		util.StartStatsReporter(ctx)

		err = app.Run(ctx, app.Options{
			Session:  app.NewSession(cfg),
			Reporter: api.New(cfg.APIURL),
			Token:    cfg.Token,
			In:       cmd.InOrStdin(),
			Out:      cmd.OutOrStdout(),
		})
		if err == nil {
			util.LogInfo("bye")
		}
		return err
	},
}

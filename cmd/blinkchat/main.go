// Blinkchat is a terminal client for anonymous one-to-one chat.
//
// `blinkchat chat` joins the matchmaking queue and talks to whoever it is
// paired with; text goes over the signaling socket and a silent audio
// stream is negotiated peer to peer. `blinkchat login` and `register`
// obtain the access token the queue requires.
//
// Settings come from flags, then BLINKCHAT_* environment variables (a .env
// file in the working directory is honoured), then defaults.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/blinkchat/internal/config"
	"github.com/1ureka/blinkchat/internal/util"
)

var version = "dev"

var (
	flagAPIURL    string
	flagWSURL     string
	flagToken     string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
	flagRelay     bool
	flagChatLimit int
	flagEnvFile   string
	flagDebug     bool
	flagTrace     bool
)

var rootCmd = &cobra.Command{
	Use:     "blinkchat",
	Short:   "Anonymous video/text chat from the terminal",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case flagTrace:
			util.EnableTrace()
		case flagDebug:
			util.EnableDebug()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flagAPIURL, "api-url", "", "REST API base URL (env "+config.EnvAPIURL+")")
	f.StringVar(&flagWSURL, "ws-url", "", "matchmaking WebSocket URL, derived from --api-url if empty (env "+config.EnvWSURL+")")
	f.StringVar(&flagToken, "token", "", "access token (env "+config.EnvToken+")")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL (env "+config.EnvSTUN+")")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL (env "+config.EnvTURN+")")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env "+config.EnvTURNUser+")")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env "+config.EnvTURNPass+")")
	f.BoolVar(&flagRelay, "relay", false, "only use TURN relay candidates (env "+config.EnvForceRelay+")")
	f.IntVar(&flagChatLimit, "chat-limit", 0, "keep at most this many chat lines, 0 for all (env "+config.EnvChatLimit+")")
	f.StringVar(&flagEnvFile, "env-file", "", "dotenv file to load (default .env)")
	f.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	f.BoolVar(&flagTrace, "trace", false, "enable trace logging, WebRTC internals included")

	rootCmd.AddCommand(chatCmd, loginCmd, registerCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		APIURL:     flagAPIURL,
		WSURL:      flagWSURL,
		Token:      flagToken,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		ChatLimit:  flagChatLimit,
		EnvFile:    flagEnvFile,
	})
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	util.SetOutput(os.Stderr)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	pterm.Info.Println("Blinkchat v" + version)
	pterm.Println()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		stop()
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"avatarstream/native/internal/api"
	"avatarstream/native/internal/config"
	"avatarstream/native/internal/media"
	"avatarstream/native/internal/session"
	"avatarstream/native/internal/status"
	"avatarstream/native/internal/webrtc"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	options struct {
		configFile string
		logLevel   string
	}
	RootCmd = &cobra.Command{
		Use:   "avatarstream",
		Short: "Talk to a streaming avatar over WebRTC",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

			lvl, err := zerolog.ParseLevel(options.logLevel)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(lvl)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, args)
		},
	}
)

func init() {
	RootCmd.AddCommand(consoleCmd)
	RootCmd.AddCommand(panelCmd)

	RootCmd.PersistentFlags().StringVar(&options.configFile, "config", "api.json", "the credentials file")
	RootCmd.PersistentFlags().StringVar(&options.logLevel, "log-level", "info", "the log level to use")
}

// app is the session workflow with everything it talks to.
type app struct {
	cfg        *config.Config
	status     *status.Log
	controller *session.Controller
}

func newApp() (*app, error) {
	cfg, err := config.Load(options.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, config.CredentialsWarning)
		return nil, err
	}

	statusLog := status.New()
	client := api.NewClient(cfg.ServerURL, cfg.APIKey, statusLog)
	controller := session.NewController(
		client,
		webrtc.NewFactory(cfg.MediaDir),
		&media.Devices{Path: cfg.MicFile},
		statusLog,
		cfg.Quality,
	)

	log.Debug().
		Str("module", "main").
		Str("server", cfg.ServerURL).
		Str("quality", cfg.Quality).
		Str("media_dir", cfg.MediaDir).
		Msg("configured")

	return &app{cfg: cfg, status: statusLog, controller: controller}, nil
}

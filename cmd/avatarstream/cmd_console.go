package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avatarstream/native/internal/console"

	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "drive the avatar session from the terminal",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		a.controller.Shutdown(shutdownCtx)
	}()

	c := console.New(a.controller, a.status, a.cfg.AvatarName, a.cfg.VoiceID)
	return c.Run(ctx, os.Stdin, os.Stdout)
}

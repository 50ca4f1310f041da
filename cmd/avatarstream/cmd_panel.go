package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"avatarstream/native/internal/panel"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var panelOptions struct {
	addr string
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "serve a browser control panel for the avatar session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		addr := a.cfg.PanelAddr
		if panelOptions.addr != "" {
			addr = panelOptions.addr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		gin.SetMode(gin.ReleaseMode)
		r := panel.SetupRouter(ctx, a.controller, a.status, panel.Defaults{
			AvatarName: a.cfg.AvatarName,
			VoiceID:    a.cfg.VoiceID,
		})

		srv := &http.Server{
			Addr:    addr,
			Handler: r,
		}

		errc := make(chan error, 1)
		go func() {
			log.Info().Str("module", "main").Str("addr", addr).Msg("panel started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case <-ctx.Done():
		case err := <-errc:
			if err != nil {
				return err
			}
		}

		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		a.controller.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("panel forced to shutdown")
		}
		return nil
	},
}

func init() {
	panelCmd.Flags().StringVar(&panelOptions.addr, "addr", "", "listen address, overrides panel_addr")
}

package main

import (
	"github.com/rs/zerolog/log"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute command")
	}
}

package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/terrylica/data-source-manager-sub003/cmd/dsm/dsmcli"
)

func main() {
	if err := dsmcli.Execute(context.Background()); err != nil {
		log.Error().Err(err).Msg("dsm exited with error")
		os.Exit(1)
	}
}

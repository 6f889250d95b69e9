package main

import (
	"context"
	"log"
	"os"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/gophvault/internal/buildinfo"
	"github.com/dmitrijs2005/gophvault/internal/client/cli"
	"github.com/dmitrijs2005/gophvault/internal/client/config"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Run(ctx)
}

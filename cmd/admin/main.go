package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/anonchat/internal/client/cli"
	"github.com/dmitrijs2005/anonchat/internal/client/config"
)

func main() {

	cfg := config.LoadConfig()
	app := cli.NewApp(cfg, os.Stdout)

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}

}

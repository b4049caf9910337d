package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/keyvault/internal/server"
	"github.com/dmitrijs2005/keyvault/internal/server/config"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.NewApp(config.LoadConfig())
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	app.Run(ctx)

}

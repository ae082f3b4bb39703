package main

import (
	"log"

	"github.com/taskilo/storno-service/config"
	"github.com/taskilo/storno-service/internal/app"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}
	app.Run(cfg)
}

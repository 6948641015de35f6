package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quizdash/quizdash/internal/config"
	"github.com/quizdash/quizdash/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	c := server.Config{}
	c.HTTP.Port = 8080

	// CONFIG_PATH is optional; defaults plus QUIZDASH_ env vars are enough
	// for a single-node run.
	if err := config.Load(os.Getenv("CONFIG_PATH"), &c); err != nil {
		return c, err
	}

	return c, nil
}

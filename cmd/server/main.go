package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"movemate/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "JSON config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	stockfish := flag.String("stockfish", "", "path of the oracle engine (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *stockfish != "" {
		cfg.OraclePath = *stockfish
	}
	log.Printf("%+v", cfg)

	s := server.New(cfg)
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}

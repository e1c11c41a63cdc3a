package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Ahmedalshafy/ircd/irc"
	"github.com/Ahmedalshafy/ircd/irc/config"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config path] <port> <password>\n", os.Args[0])
}

func main() {
	configPath := flag.String("config", "", "optional server identity config file (toml/yaml/json)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	port := flag.Arg(0)
	password := flag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	server := irc.NewServer("0.0.0.0", port, password, irc.Config{
		ServerName:  cfg.Server.Name,
		NetworkName: cfg.Server.Network,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGQUIT)

	select {
	case sig := <-sigChan:
		log.Printf("[ircd] received signal %v, shutting down", sig)
		server.Stop()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Fatalf("[ircd] server exited: %v", err)
		}
	}

	log.Println("[ircd] stopped")
}

// Command gametabled runs the game table server: the TCP and websocket
// coordination backend for multiplayer board games.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marchhare/gametable/pkg/server"
)

var version = "dev" // set via -ldflags at build time

func main() {
	configPath := flag.String("config", "~/.gametable/config.toml", "path to configuration file")
	tcpPort := flag.Int("port", 0, "TCP listen port (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gametabled %s\n", version)
		return
	}

	if *debug {
		server.EnableDebugLogging(os.Stderr)
	}

	fileCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg := fileCfg.Runtime()
	if *tcpPort != 0 {
		cfg.TCPPort = *tcpPort
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("starting server: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("starting server: %v", err)
	}

	log.Printf("gametabled %s listening on tcp :%d (ws :%d, metrics :%d)",
		version, cfg.TCPPort, cfg.HTTPPort, cfg.MetricsPort)
	log.Printf("robot cookie: %s", srv.RobotCookie())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("shutting down")
	srv.Stop()
}

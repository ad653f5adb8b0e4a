// Command server runs one node of the relay federation. Usage:
//
//	server <port> <name>
//	server <port> <name> <parent_name> <parent_ip> <parent_port>
//
// The optional trailing three arguments link this server as a child
// of an already-running parent.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/chatrelay/relay/relay"
	"github.com/chatrelay/relay/relay/config"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file or URL (optional)")
	flag.Parse()
	args := flag.Args()

	if len(args) != 2 && len(args) != 5 {
		fmt.Fprintln(os.Stderr, "usage: server <port> <name> [<parent_name> <parent_ip> <parent_port>]")
		os.Exit(2)
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], err)
		os.Exit(2)
	}
	name := args[1]

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	srv, err := relay.NewServer(name, cfg)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	if len(args) == 5 {
		parentName, parentIP, parentPort := args[2], args[3], args[4]
		if err := srv.LinkToParent(parentName, fmt.Sprintf("%s:%s", parentIP, parentPort)); err != nil {
			log.Fatalf("failed to link to parent %s: %v", parentName, err)
		}
	}

	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, srv.Metrics().Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()
	log.Printf("relay %s listening on %s", name, addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down")
	srv.Shutdown()
}

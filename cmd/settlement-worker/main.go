package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/remittance-middleware/pkg/app"
	"github.com/chainsafe/remittance-middleware/pkg/app/worker"
	"github.com/chainsafe/remittance-middleware/pkg/config"
)

var (
	configPath = flag.String("config", "config.worker.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWorker(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = worker.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Worker failed: %v\n", err)
		os.Exit(1)
	}
}

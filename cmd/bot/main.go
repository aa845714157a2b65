// cmd/bot/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quorlin/swapcord/internal/bot"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	flag.Parse()

	runner := bot.NewRunner()
	if err := runner.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}

	// the chat transport drives runner.Router() from here on; this process
	// just waits for a termination signal
	runner.WaitForShutdown()
}

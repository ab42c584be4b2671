/**
 * @description
 * This is the main entry point for the banksync-service binary. All wiring lives in
 * internal/commands; `banksync serve` runs the service.
 */
package main

import (
	"context"
	"os"

	"github.com/finmind/banksync-service/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

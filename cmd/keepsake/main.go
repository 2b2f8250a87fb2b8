// Command keepsake is a local-first personal data engine.
package main

import (
	"os"

	"github.com/custodia-labs/keepsake/internal/adapters/driving/cli"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

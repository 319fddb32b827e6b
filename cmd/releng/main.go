// Command releng runs the release engineering utilities.
package main

import (
	"os"

	"releng-kit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

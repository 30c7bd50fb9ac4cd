// Command oodb inspects and maintains oodb databases.
package main

import (
	"os"

	"github.com/hupe1980/oodb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

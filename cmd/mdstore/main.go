// Command mdstore manages a metadata catalog of schemas, tables, columns and
// the constraints recorded about them.
package main

import (
	"os"

	"mdstore/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

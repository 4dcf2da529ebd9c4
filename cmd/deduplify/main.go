// Command deduplify finds files with identical content and removes the
// redundant copies.
package main

import (
	"os"
)

func main() {
	os.Exit(Execute(os.Args[1:]))
}

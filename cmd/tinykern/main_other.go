//go:build !unix

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "tinykern: this platform has no console device implementation")
	os.Exit(1)
}

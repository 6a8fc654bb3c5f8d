package main

import (
	"log"

	"github.com/thiagokokada/revlog/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("revlog: %v", err)
	}
}

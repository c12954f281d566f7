package main

import (
	"os"

	"github.com/sphere-social/sphere-matching/matchingservice"
)

func main() {
	if err := matchingservice.Run(); err != nil {
		os.Exit(1)
	}
}

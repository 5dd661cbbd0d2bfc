package main

import (
	"github.com/charmbracelet/log"

	"fwblock/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("fwblock terminated", "error", err)
	}
}

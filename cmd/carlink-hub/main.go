package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/carlink-io/carlink/cmd/carlink-hub/app"
)

func main() {
	if err := app.NewApp().Run(); err != nil {
		os.Exit(1)
	}
}

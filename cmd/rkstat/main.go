package main

import (
	"os"

	"github.com/ekisa-team/rkbackend/cmd/rkstat/app"

	_ "github.com/ekisa-team/rkbackend/internal/device/rknn"
	_ "github.com/ekisa-team/rkbackend/internal/device/sim"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

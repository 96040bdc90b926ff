package main

import (
	"github.com/zalando-incubator/e2s/cmd/e2s/app"
	"github.com/zalando-incubator/e2s/pkg/log"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/stepguard/cmd/stepguard-monitor/app"
)

func main() {
	app.NewApp().Run()
}

package main

import (
	"context"
	"fmt"
	"os"

	"ride-dispatch/internal/config"
	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/mylogger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	mylog, err := mylogger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := dispatch.Execute(context.Background(), mylog, cfg); err != nil {
		mylog.Action("main").Error("service exited with error", err)
		os.Exit(1)
	}
}

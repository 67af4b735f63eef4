package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/configs"
	"github.com/w3f-community/iroha/node"
)

func main() {
	cfg := &node.Config{}
	if err := configs.ReadTo(configs.Path(os.Args[1:], "config.json"), cfg); err != nil {
		logrus.Errorf("Startup failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, syscall.SIGINT)
	defer cancel()

	if err := node.Run(ctx, cfg); err != nil {
		logrus.Errorf("Bridge node finished with error: %v", err)
		os.Exit(1)
	}
}

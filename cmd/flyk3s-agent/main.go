// Package main is the entry point for the flyk3s node agent.
//
// The agent runs as pid 1 inside every cluster machine. It prepares the
// host, installs and configures the k3s runtime, and then execs the init
// system, which starts the runtime service. It terminates the machine on
// any bootstrap failure so the platform restarts it.
package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/flyk3s/flyk3s/internal/agent"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	env, err := agent.EnvFromProcess()
	if err != nil {
		log.WithError(err).Fatal("invalid bootstrap environment")
	}

	entry := log.WithFields(logrus.Fields{
		"machine": env.MachineID,
		"role":    env.Role,
	})
	if err := agent.New(env, entry).Run(context.Background()); err != nil {
		entry.WithError(err).Fatal("bootstrap failed")
	}
}

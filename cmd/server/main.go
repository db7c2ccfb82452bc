package main

import (
	"github.com/helix-research/litgraph/internal/server"
	"github.com/helix-research/litgraph/internal/util"
	"github.com/helix-research/litgraph/pkg/logger"
	"github.com/helix-research/litgraph/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}

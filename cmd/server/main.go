// Package main is the entry point for the midiseq API server
package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"github.com/james-see/midiseq/pkg/api"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "midiseq-server"})
	logger.Info("starting midiseq API server", "port", *port)
	logger.Infof("swagger docs available at http://localhost:%d/swagger/index.html", *port)

	if err := api.StartServer(*port); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaura24/regaudit/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for submitting, executing, and reviewing register audit runs.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	c, err := build(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	port := c.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Port:       port,
		AuthSecret: c.cfg.AuthSecret,
	}, c.orc, c.repo, c.bus, c.log)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

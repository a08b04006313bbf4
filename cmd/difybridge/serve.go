package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/difybridge/config"
	"github.com/spetersoncode/difybridge/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AG-UI server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		logger := newLogger(cfg.Server)
		agents, err := newAgents(cfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg.Server, runners(agents), logger)
		for _, ac := range cfg.Agents {
			logger.Info("agent registered",
				"agent_id", ac.ID,
				"endpoint", fmt.Sprintf("POST %s/%s/send-message", cfg.Server.BasePath, ac.ID),
				"dify", agents[ac.ID].BaseURL(),
			)
		}
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config)")
}

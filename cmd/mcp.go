package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the CAD tools over MCP on stdio",
	Long:  "Runs a Model Context Protocol server on stdin/stdout. The part tools always work; generate_model needs an LLM key in the config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initBase("part")
		if err != nil {
			return err
		}
		defer env.Close()

		deps := mcpserver.Deps{
			Registry: mcpserver.NewRegistry(),
			Models:   env.Models,
		}
		if err := cfg.Validate("mcp"); err != nil {
			zap.L().Warn("mcp: generate_model disabled", zap.Error(err))
		} else if err := env.initGeneration(ctx); err != nil {
			return err
		} else {
			deps.Generator = env.Pipeline
		}

		srv := mcpserver.New(mcpserver.Config{
			Name:    "genx3d",
			Version: version,
			Format:  cfg.Generation.Format,
		}, deps)
		return srv.Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/genx3d/genx3d/internal/router"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant: ask for help, generate a model or build a part",
	Long:  "With a message argument, routes that one message and exits. Without one, reads messages from stdin until EOF or \"exit\".",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "chat")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) > 0 {
			resp := env.Router.Handle(cmd.Context(), strings.Join(args, " "))
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		}
		return chatLoop(cmd.Context(), env.Router, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

type chatHandler interface {
	Handle(ctx context.Context, message string) router.Response
}

// chatLoop reads one message per line and prints each reply.
func chatLoop(ctx context.Context, h chatHandler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return nil
		}
		printResponse(out, h.Handle(ctx, line))
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return eris.Wrap(scanner.Err(), "read input")
}

func printResponse(out io.Writer, resp router.Response) {
	fmt.Fprintf(out, "[%s] %s\n", resp.Agent, resp.Message)
	if resp.ModelURL != "" {
		fmt.Fprintf(out, "model: %s\n", resp.ModelURL)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/genx3d/genx3d/internal/model"
)

var (
	generateJSON        bool
	generateMaxAttempts int
	generateTopK        int
	generateNoHybrid    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Generate a CAD model from a text description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateMaxAttempts > 0 {
			cfg.Generation.MaxAttempts = generateMaxAttempts
		}
		if generateTopK > 0 {
			cfg.Generation.TopK = generateTopK
		}
		if generateNoHybrid {
			cfg.Generation.UseHybrid = false
		}

		env, err := initApp(cmd.Context(), "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Pipeline.Generate(cmd.Context(), strings.Join(args, " "))

		out := cmd.OutOrStdout()
		if generateJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return eris.Wrap(err, "encode result")
			}
		} else {
			printGeneration(cmd, res)
		}

		if !res.Success {
			return eris.Errorf("generation failed after %d attempt(s): %s", res.Attempts, res.ErrorMessage)
		}
		return nil
	},
}

func printGeneration(cmd *cobra.Command, res model.GenerationResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status:   %s\n", res.Status)
	fmt.Fprintf(out, "attempts: %d\n", res.Attempts)
	if res.Success {
		fmt.Fprintf(out, "model:    %s\n", res.ModelURL)
	} else {
		fmt.Fprintf(out, "error:    %s\n", res.ErrorMessage)
	}
	if code := res.SanitizedCode; code != "" {
		fmt.Fprintf(out, "\n%s\n", code)
	}
}

func init() {
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the full result as JSON")
	generateCmd.Flags().IntVar(&generateMaxAttempts, "max-attempts", 0, "generation attempts (default from config)")
	generateCmd.Flags().IntVar(&generateTopK, "top-k", 0, "examples to retrieve (default from config)")
	generateCmd.Flags().BoolVar(&generateNoHybrid, "no-hybrid", false, "always query the remote index too")
	rootCmd.AddCommand(generateCmd)
}

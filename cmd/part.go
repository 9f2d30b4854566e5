package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/parts"
)

var (
	partFormat string
	partJSON   bool
)

var partCmd = &cobra.Command{
	Use:   "part <description>",
	Short: "Build a box, cylinder or flange directly from its dimensions",
	Long:  `Parses a request such as "cylinder radius 5 height 20" or "flange od 100 id 40 thickness 10 bolts 8" and exports the part without calling the LLM.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initBase("part")
		if err != nil {
			return err
		}
		defer env.Close()

		spec, err := parts.ParseRequest(strings.Join(args, " "))
		if err != nil {
			return err
		}

		format := partFormat
		if format == "" {
			format = cfg.Generation.Format
		}
		m, err := parts.Export(spec, env.Models, format)
		if err != nil {
			return eris.Wrap(err, "export part")
		}
		zap.L().Info("part exported", zap.String("kind", string(spec.Kind)), zap.String("model_id", m.ID))

		out := cmd.OutOrStdout()
		if partJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"spec":        spec,
				"description": spec.Describe(),
				"model":       m,
			})
		}
		fmt.Fprintf(out, "%s\n", spec.Describe())
		fmt.Fprintf(out, "file: %s\n", m.Path)
		fmt.Fprintf(out, "url:  %s\n", m.URL)
		return nil
	},
}

func init() {
	partCmd.Flags().StringVar(&partFormat, "format", "", "export format: STEP or STL (default from config)")
	partCmd.Flags().BoolVar(&partJSON, "json", false, "print the spec and model as JSON")
	rootCmd.AddCommand(partCmd)
}

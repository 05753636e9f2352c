package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/computerscienceiscool/llm-autorun/pkg/scanner"
)

func newExtractCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Print the commands that would be extracted from a reply (stdin by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("cannot read input file: %w", err)
				}
				defer f.Close()
				input = f
			}
			text, err := io.ReadAll(input)
			if err != nil {
				return fmt.Errorf("cannot read input: %w", err)
			}

			ex := scanner.NewExtractor(scanner.ExtractorOptions{
				Verbs:          viper.GetStringSlice("extract.verbs"),
				FenceLanguages: viper.GetStringSlice("extract.fence_languages"),
			})
			candidates := ex.Extract(string(text))
			return writeCandidates(cmd.OutOrStdout(), candidates, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output candidates as JSON")
	return cmd
}

type candidateJSON struct {
	Command  string `json:"command"`
	Raw      string `json:"raw"`
	Span     string `json:"span"`
	Language string `json:"language,omitempty"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

func writeCandidates(w io.Writer, candidates []scanner.Candidate, asJSON bool) error {
	if asJSON {
		out := make([]candidateJSON, 0, len(candidates))
		for _, c := range candidates {
			out = append(out, candidateJSON{
				Command:  c.Text,
				Raw:      c.Raw,
				Span:     c.Span.String(),
				Language: c.Language,
				Start:    c.StartPos,
				End:      c.EndPos,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(candidates) == 0 {
		fmt.Fprint(w, "=== NO COMMANDS FOUND ===\n")
		return nil
	}
	for i, c := range candidates {
		fmt.Fprintf(w, "%d. %s\n", i+1, c.Text)
	}
	return nil
}

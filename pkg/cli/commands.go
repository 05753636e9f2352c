package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/computerscienceiscool/llm-autorun/pkg/app"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [request...]",
		Short: "Prompt loop: each request is answered with commands run in the working directory",
		Long: `Without arguments chat reads requests from stdin until EOF or "q".
With arguments the joined words are run as a single request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrapApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) > 0 {
				return a.RunPrompt(cmd.Context(), strings.Join(args, " "))
			}
			return a.RunChat(cmd.Context())
		},
	}
}

func newRepoCmd() *cobra.Command {
	var readmeURL string
	cmd := &cobra.Command{
		Use:   "repo <url> <request...>",
		Short: "Clone a repository and run commands until the request succeeds",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrapApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.RunRepo(cmd.Context(), app.RepoRequest{
				URL:       args[0],
				ReadmeURL: readmeURL,
				Prompt:    strings.Join(args[1:], " "),
			})
		},
	}
	cmd.Flags().StringVar(&readmeURL, "readme-url", "", "Fetch the README from this URL instead of the clone")
	return cmd
}

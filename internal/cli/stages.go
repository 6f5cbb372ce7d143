package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/render"
)

var stagesMarkdown bool

// stagesCmd represents the stages command
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the analysis stages",
	Long:  `Display the five analysis stages in execution order with their nominal pacing.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		mode := render.ASCII
		if stagesMarkdown {
			mode = render.Markdown
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.StagesTable(pipeline.Stages(), mode))
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().BoolVar(&stagesMarkdown, "md", false, "render as a Markdown table")
}

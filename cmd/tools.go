package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/jarvis-voice/internal/presentation"
	"github.com/zjrosen/jarvis-voice/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool definitions passed to the voice backend",
	Long: `Prints the function definitions the process worker receives in JARVIS_TOOLS,
as JSON. Only whitelisted tools are listed.

Example:
  jarvis tools | jq '.[].function.name'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatJSON(tools.Definitions())
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

// Command whisper is the terminal companion of the assistant server: it asks
// questions with a persisted conversation and uploads the knowledge base.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "whisper",
	Short:        "Talk to the entrepreneur assistant and manage its knowledge base",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newUploadCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

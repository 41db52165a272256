package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vulnvalid",
	Short: "Vulnerability report validation tool",
	Long: `VulnValid takes a pentest or vulnerability report and validates its
findings against the application's source code and the running target,
producing an evidence-based verdict for every reported vulnerability.`,
}

var DebugMode bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
}

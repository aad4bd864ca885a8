package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtpfs-project/gomtpfs/src/internal/config"
)

// testCmd represents the test command, which checks the configuration
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify gomtpfs configuration",
	Long:  "Check the gomtpfs configuration file for completeness and consistency",
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.Test(); err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}

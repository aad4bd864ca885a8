package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtpfs-project/gomtpfs/src/internal/server"
)

// mountCmd represents the mount command
var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the MTP device at mountpoint",
	Long:  "Mount the configured MTP device as a POSIX filesystem at mountpoint, and serve requests until interrupted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Run(args[0], Version); err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

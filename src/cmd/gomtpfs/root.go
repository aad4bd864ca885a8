package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var preamble = `gomtpfs ` + Version + `

gomtpfs mounts a Media Transfer Protocol device as a POSIX filesystem.

gomtpfs comes with ABSOLUTELY NO WARRANTY. This is free software, and you
are welcome to redistribute it under certain conditions.`

var rootCmd = &cobra.Command{
	Use:     "gomtpfs",
	Short:   "mount an MTP device as a filesystem",
	Long:    preamble,
	Version: Version,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

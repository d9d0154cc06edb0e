package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const banner = `
  _                             __      
 | | _____ _   _ ___  __ _ / _| ___ 
 | |/ / _ \ | | / __|/ _` + "`" + ` | |_ / _ \
 |   <  __/ |_| \__ \ (_| |  _|  __/
 |_|\_\___|\__, |___/\__,_|_|  \___|
           |___/                    
`

func printBanner(w io.Writer) {
	fmt.Fprint(w, info(banner))
	fmt.Fprintf(w, "%s\n\n", success("  Local secrets vault - Version "+Version))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		printBanner(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

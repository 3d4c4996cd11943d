package cmd

import (
	"fmt"

	"github.com/inclawbate/staking-engine/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the staking engine",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)

		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Printf("StakingEngineVersion: %s\nCommit: %s\n", v, commit)
	},
}

package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for maelnode
var RootCmd = &cobra.Command{
	Use:              "maelnode",
	Short:            "maelstrom node runtime",
	TraverseChildren: true,
}

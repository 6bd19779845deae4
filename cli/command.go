package cli

import (
	"github.com/spf13/cobra"
)

// cobraCommand is used to implement any type of cobra command
// for any of the command-line tools and executables in this module.
type cobraCommand interface {
	Build() *cobra.Command
}

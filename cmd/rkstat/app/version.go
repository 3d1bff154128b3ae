package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version MODEL",
		Short: "Print the NPU runtime API and driver versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			v := session.SDKVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "sdk api version: %s\ndriver version: %s\narch: %s\n",
				v.API, v.Driver, session.Arch())
			return nil
		},
	}
}

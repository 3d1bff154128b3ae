package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMemCommand creates the mem command.
func NewMemCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mem MODEL",
		Short: "Print the NPU memory footprint of a model",
		Long: `Print the weight and internal memory the runtime allocates for a model.
The query is only available on ARM64 hosts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			mem, err := session.MemSize()
			if err != nil {
				return fmt.Errorf("failed to query memory size: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total weight size:        %d\n", mem.TotalWeight)
			fmt.Fprintf(out, "total internal size:      %d\n", mem.TotalInternal)
			fmt.Fprintf(out, "total dma allocated size: %d\n", mem.TotalDMAAllocated)
			return nil
		},
	}
}

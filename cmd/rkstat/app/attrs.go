package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/tensor"
)

// NewAttrsCommand creates the attrs command.
func NewAttrsCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attrs MODEL",
		Short: "Print the input and output tensor attributes of a model",
		Example: `  # Inspect a compiled YOLOv5 model
  rkstat attrs /var/lib/rkbackend/models/yolov5/1/model.rknn`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			attrs, err := session.QueryAttributes()
			if err != nil {
				return fmt.Errorf("failed to query attributes: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model input num: %d, output num: %d\n\n", attrs.IOCount.Inputs, attrs.IOCount.Outputs)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tINDEX\tNAME\tDIMS\tELEMS\tSIZE\tFMT\tTYPE\tQNT\tZP\tSCALE")
			writeAttrs(w, "input", attrs.Inputs)
			writeAttrs(w, "output", attrs.Outputs)
			return w.Flush()
		},
	}
}

func writeAttrs(w *tabwriter.Writer, kind string, attrs []device.TensorAttr) {
	for _, a := range attrs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%d\t%g\n",
			kind, a.Index, a.Name, tensor.Shape(a.Dims), a.ElementCount, a.Size,
			a.Layout, a.Type, a.QuantType, a.ZeroPoint, a.Scale)
	}
}

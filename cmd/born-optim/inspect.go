package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/born-optim/internal/checkpoint"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a checkpoint header and verify its checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			snap, header, err := checkpoint.Load(path)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			}
			a.logger.Debug("checkpoint loaded", zap.String("path", path), zap.Int("tensors", len(snap.Tensors)))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "file:\t%s\n", path)
			fmt.Fprintf(w, "format:\tv%d (%s)\n", header.FormatVersion, header.Generator)
			fmt.Fprintf(w, "run:\t%s\n", header.RunID)
			fmt.Fprintf(w, "created:\t%s\n", header.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "rule:\t%s\n", header.Rule)
			fmt.Fprintf(w, "step:\t%d\n", header.Step)
			fmt.Fprintf(w, "checksum:\tok\n")

			keys := make([]string, 0, len(header.Metadata))
			for k := range header.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "meta %s:\t%s\n", k, header.Metadata[k])
			}

			fmt.Fprintf(w, "\nTENSOR\tSHAPE\tBYTES\n")
			for _, m := range header.Tensors {
				fmt.Fprintf(w, "%s\t%v\t%d\n", m.Name, m.Shape, m.Size)
			}
			return w.Flush()
		},
	}
}

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/lodstream/budget"
	"github.com/hupe1980/lodstream/bvh"
)

func budgetCmd() *cobra.Command {
	var (
		ratio      float64
		total      string
		tree       string
		surfels    uint32
		surfelSize uint32
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show how many slots a memory ratio buys",
		Long: `Show how many slots a memory ratio buys.

The node size comes from --tree or from --surfels and --surfel-size.

Examples:
  lodstream budget --tree bunny.bvh --ratio 0.25
  lodstream budget --surfels 1024 --surfel-size 48 --total 16GiB`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tree != "" {
				t, err := bvh.ReadFile(tree)
				if err != nil {
					return err
				}

				surfels, surfelSize = t.SurfelsPerNode, t.SurfelSize
			}

			slot := uint64(surfels) * uint64(surfelSize)
			if slot == 0 {
				return fmt.Errorf("node size is zero: pass --tree or --surfels and --surfel-size")
			}

			var (
				st  budget.Status
				err error
			)

			if total != "" {
				n, perr := humanize.ParseBytes(total)
				if perr != nil {
					return perr
				}

				st = budget.NewStatusFor(n, ratio, slot)
			} else {
				st, err = budget.NewStatus(ratio, slot)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "total memory: %s\n", humanize.IBytes(st.Total()))
			fmt.Fprintf(w, "budget:       %s (ratio %g)\n", humanize.IBytes(st.Budget()), ratio)
			fmt.Fprintf(w, "node size:    %s\n", humanize.IBytes(slot))
			fmt.Fprintf(w, "slots:        %d\n", st.MaxElementsAllowed(0))

			if avail, err := budget.AvailableMemory(); err == nil {
				fmt.Fprintf(w, "available:    %s\n", humanize.IBytes(avail))
			}

			return nil
		},
	}

	cmd.Flags().Float64VarP(&ratio, "ratio", "r", 0.25, "share of total memory")
	cmd.Flags().StringVar(&total, "total", "", "override total memory, e.g. 16GiB")
	cmd.Flags().StringVarP(&tree, "tree", "t", "", "take the node size from a tree file")
	cmd.Flags().Uint32Var(&surfels, "surfels", 0, "surfels per node")
	cmd.Flags().Uint32Var(&surfelSize, "surfel-size", 0, "bytes per surfel")

	return cmd
}

package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/model"
)

func inspectCmd() *cobra.Command {
	var nodes int

	cmd := &cobra.Command{
		Use:   "inspect <tree.bvh>",
		Short: "Print the header and nodes of a tree file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bvh.ReadFile(args[0])
			if err != nil {
				return err
			}

			return printTree(cmd.OutOrStdout(), args[0], t, nodes)
		},
	}

	cmd.Flags().IntVarP(&nodes, "nodes", "n", 0, "also print the first n nodes")

	return cmd
}

func printTree(w io.Writer, path string, t *bvh.Tree, nodes int) error {
	payload := t.NodeBytes() * uint64(t.NumNodes())

	fmt.Fprintf(w, "file:             %s\n", path)
	fmt.Fprintf(w, "payload:          %s (%s)\n", bvh.PayloadName(path), humanize.IBytes(payload))
	fmt.Fprintf(w, "state:            %s\n", t.State)
	fmt.Fprintf(w, "depth:            %d\n", t.Depth)
	fmt.Fprintf(w, "fan factor:       %d\n", t.FanFactor)
	fmt.Fprintf(w, "nodes:            %d\n", t.NumNodes())
	fmt.Fprintf(w, "surfels per node: %d\n", t.SurfelsPerNode)
	fmt.Fprintf(w, "surfel size:      %d\n", t.SurfelSize)
	fmt.Fprintf(w, "node size:        %s\n", humanize.IBytes(t.NodeBytes()))
	fmt.Fprintf(w, "translation:      %v\n", t.Translation)

	if len(t.NodeExtensions) > 0 || len(t.Extension) > 0 {
		fmt.Fprintf(w, "extensions:       tree %d bytes, %d nodes\n", len(t.Extension), len(t.NodeExtensions))
	}

	for i := range min(nodes, int(t.NumNodes())) {
		n := t.Nodes[i]

		parent := int64(-1)
		if p, ok := t.Parent(model.NodeID(i)); ok {
			parent = int64(p)
		}

		fmt.Fprintf(w, "  node %-6d depth=%d parent=%d radius=%g error=%g box=%v..%v\n",
			i, n.Depth, parent, n.AvgRadius, n.ReductionError, n.Box.Min, n.Box.Max)
	}

	return nil
}

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/lodstream/ply"
)

func plyCmd() *cobra.Command {
	var points bool

	cmd := &cobra.Command{
		Use:   "ply <file.ply>",
		Short: "Print the header of a PLY file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			r := bufio.NewReader(f)

			h, err := ply.ReadHeader(r)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "format: %s %s\n", h.Format, h.Version)

			for _, c := range h.Comments {
				fmt.Fprintf(w, "comment: %s\n", c)
			}

			for _, e := range h.Elements {
				fmt.Fprintf(w, "element %s %d\n", e.Name, e.Count)

				for _, p := range e.Properties {
					fmt.Fprintf(w, "  %s %s\n", p.Kind, p.Name)
				}
			}

			if !points {
				return nil
			}

			pts := &ply.Points{}
			if err := ply.DecodeBody(r, h, pts); err != nil {
				return err
			}

			lo, hi := pts.Bounds()
			fmt.Fprintf(w, "points: %d\nfaces: %d\nbounds: %v..%v\n", len(pts.Points), pts.Faces, lo, hi)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&points, "points", "p", false, "decode the body and print point bounds")

	return cmd
}

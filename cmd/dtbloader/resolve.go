package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darkit/dtbloader"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Show which device tree the volume provides for this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadIdentity()
			if err != nil {
				return err
			}
			priority, err := cfg.PriorityList()
			if err != nil {
				return err
			}
			r := dtbloader.NewResolver(os.DirFS(cfg.Volume), cfg.Layout,
				dtbloader.LimitedAllocator(cfg.MaxArtifactSize), logger)
			res, err := r.Resolve(rec, priority)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:    %s\n", res.Path)
			if res.Override() {
				fmt.Fprintln(out, "variant: override")
			} else {
				fmt.Fprintf(out, "variant: %s\n", res.Variant.Label)
				fmt.Fprintf(out, "chid:    %s\n", res.CHID)
			}
			fmt.Fprintf(out, "size:    %d\n", res.Artifact.TotalSize())
			return nil
		},
	}
}

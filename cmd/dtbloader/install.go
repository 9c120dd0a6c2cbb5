package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darkit/dtbloader"
	"github.com/darkit/dtbloader/chid"
)

func newInstallCmd() *cobra.Command {
	var variantName string
	cmd := &cobra.Command{
		Use:   "install <file.dtb>",
		Short: "Store a device tree on the volume under this machine's hardware id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadIdentity()
			if err != nil {
				return err
			}
			priority, err := cfg.PriorityList()
			if err != nil {
				return err
			}
			id := priority[0]
			if variantName != "" {
				if id, err = chid.ParseVariant(variantName); err != nil {
					return err
				}
			}
			v, _ := chid.Lookup(id)

			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			path, err := dtbloader.Install(cfg.Volume, cfg.Layout, v.Derive(rec), blob)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s as %s\n", args[0], path)
			return nil
		},
	}
	cmd.Flags().StringVar(&variantName, "variant", "", "variant to key the file by (default: first in priority)")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darkit/dtbloader"
	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/firmware"
	"github.com/darkit/dtbloader/inventory"
	"github.com/darkit/dtbloader/smbios"
)

func newBootCmd() *cobra.Command {
	var (
		outPath      string
		simulateExit bool
		panelID      uint32
	)
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Run the full load pipeline against in-memory firmware tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := cfg.PriorityList()
			if err != nil {
				return err
			}
			version, err := inventory.EncodeVersion(cfg.Version)
			if err != nil {
				return err
			}

			vars := varStore(cfg.EfivarsDir)
			if cmd.Flags().Changed("panel-id") {
				mem := efivar.NewMemory()
				info := dtbloader.DisplayInfo{VersionInfo: dtbloader.DisplayInfoMagic << 16, PanelID: panelID}
				mem.Set(dtbloader.DisplayInfoVariable, firmware.GraphicsOutputProtocolGUID, info.Marshal())
				vars = mem
			}
			var registrar inventory.Registrar = inventory.NewMemory()
			if cfg.InventoryFile != "" {
				registrar = inventory.NewFileRegistrar(cfg.InventoryFile)
			}

			tables := firmware.NewMemoryTables()
			bus := firmware.NewBus()
			loader, err := dtbloader.NewLoader(dtbloader.Options{
				FS:        os.DirFS(cfg.Volume),
				Layout:    cfg.Layout,
				Priority:  priority,
				Headroom:  cfg.Headroom,
				Alloc:     dtbloader.LimitedAllocator(cfg.MaxArtifactSize),
				Identity:  smbios.SourceFunc(loadIdentity),
				Vars:      vars,
				Tables:    tables,
				Events:    bus,
				Inventory: registrar,
				Version:   version,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			if err := loader.Start(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res, ok := loader.Result()
			if !ok {
				fmt.Fprintf(out, "state:   %s\n", loader.State())
				return nil
			}
			fmt.Fprintf(out, "path:    %s\n", res.Resolution.Path)
			fmt.Fprintf(out, "overlay: %s\n", res.Overlay)
			fmt.Fprintf(out, "crc32:   %08x\n", res.Activation.Checksum)
			fmt.Fprintf(out, "size:    %d\n", res.Activation.TotalSize)

			if outPath != "" {
				slot, ok := tables.Lookup(firmware.FdtTableGUID)
				if !ok {
					return fmt.Errorf("device tree table not installed")
				}
				if err := os.WriteFile(outPath, slot, 0o644); err != nil {
					return err
				}
			}
			if simulateExit {
				bus.Fire(firmware.SignalExitBootServices)
				fmt.Fprintf(out, "exit:    %s\n", loader.Arbiter().Decision())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the activated device tree to this file")
	cmd.Flags().BoolVar(&simulateExit, "simulate-exit", false, "fire the runtime transition and print the decision")
	cmd.Flags().Uint32Var(&panelID, "panel-id", 0, "simulate a UEFIDisplayInfo variable with this panel id")
	return cmd
}

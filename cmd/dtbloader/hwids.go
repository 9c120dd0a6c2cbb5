package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/darkit/dtbloader/chid"
)

type hwidEntry struct {
	Label    string `yaml:"label"`
	CHID     string `yaml:"chid"`
	Fields   string `yaml:"fields"`
	Priority int    `yaml:"priority,omitempty"`
}

type hwidReport struct {
	Identity chid.Record `yaml:"identity"`
	IDs      []hwidEntry `yaml:"hardware_ids"`
}

func newHwidsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "hwids",
		Short: "Print every computer hardware id derived from this machine",
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
			rank := make(map[chid.VariantID]int, len(priority))
			for i, id := range priority {
				rank[id] = i + 1
			}

			report := hwidReport{Identity: rec}
			for _, c := range chid.Compute(rec) {
				report.IDs = append(report.IDs, hwidEntry{
					Label:    c.Variant.Label,
					CHID:     c.ID.String(),
					Fields:   c.Variant.Describe(),
					Priority: rank[c.Variant.ID],
				})
			}

			out := cmd.OutOrStdout()
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			case "text":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, e := range report.IDs {
					mark := " "
					if e.Priority > 0 {
						mark = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t{%s}\t<- %s\n", mark, e.Label, e.CHID, e.Fields)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

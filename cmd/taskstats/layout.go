package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srodi/taskstats/pkg/taskstats"
)

func newLayoutCmd(stdout io.Writer) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Compare the struct taskstats offset table with the running kernel's BTF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				return printFieldTable(stdout)
			}
			rep, err := taskstats.VerifyKernelLayout()
			if err != nil {
				return err
			}
			return printLayoutReport(stdout, rep)
		},
	}
	cmd.Flags().BoolVar(&all, "fields", false, "print the offset table instead of checking the kernel")
	return cmd
}

func printFieldTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tOFFSET\tSIZE\tUNIT\tSINCE")
	for _, f := range taskstats.AllFields() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", f.Name, f.Offset, f.Size, f.Unit, f.Since)
	}
	return tw.Flush()
}

func printLayoutReport(w io.Writer, rep taskstats.LayoutReport) error {
	fmt.Fprintf(w, "kernel struct taskstats: %d bytes, table: %d bytes\n", rep.KernelSize, taskstats.RawSize)
	for _, m := range rep.Mismatches {
		fmt.Fprintf(w, "  %s\n", m)
	}
	for _, name := range rep.Unknown {
		fmt.Fprintf(w, "  %s: kernel member not in table\n", name)
	}
	if !rep.OK() {
		return fmt.Errorf("offset table disagrees with kernel BTF")
	}
	fmt.Fprintln(w, "layout OK")
	return nil
}

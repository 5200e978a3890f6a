package cmd

import (
	"fmt"

	"qcwarehouse/internal/qc/sku"

	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <code>...",
		Short: "Print the scan token each code resolves to.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, code := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%q\t%s\n", code, sku.Normalize(code))
			}
			return nil
		},
	}
}

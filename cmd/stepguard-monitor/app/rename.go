package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRenameCommand() *cobra.Command {
	c := newAPIClient()
	cmd := &cobra.Command{
		Use:   "rename DEVICE_ID [NAME]",
		Short: "Set the display name of a device, or clear it when NAME is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}

			d, err := c.RenameDevice(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %q (%s)\n", d.ID, d.Name, d.Status)
			return nil
		},
	}
	c.AddFlags(cmd.Flags())
	return cmd
}

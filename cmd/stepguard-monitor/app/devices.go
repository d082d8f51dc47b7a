package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/monitor/notifier"
)

func newDevicesCommand() *cobra.Command {
	c := newAPIClient()
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices known to a running monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			devices := make([]model.Device, 0, len(list.Items))
			for _, item := range list.Items {
				d := model.Device{
					ID:          item.ID,
					Status:      item.Status,
					DisplayName: item.DisplayName,
					FirstSeen:   item.FirstSeen,
					Placeholder: item.Placeholder,
				}
				if item.LastSeen != nil {
					d.LastSeen = *item.LastSeen
				}
				devices = append(devices, d)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, notifier.DeviceTable(devices, time.Now()))
			fmt.Fprintf(out, "\n%d online, %d offline\n", list.Online, list.Offline)
			return nil
		},
	}
	c.AddFlags(cmd.Flags())
	return cmd
}

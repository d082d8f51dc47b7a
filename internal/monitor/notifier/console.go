package notifier

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
)

// ConsoleSink renders the table of every device on each transition.
type ConsoleSink struct {
	w    io.Writer
	list DeviceLister
	now  func() time.Time
}

func NewConsoleSink(w io.Writer, list DeviceLister) *ConsoleSink {
	return &ConsoleSink{w: w, list: list, now: time.Now}
}

func (s *ConsoleSink) OnTransition(_ context.Context, e model.Event) error {
	table := DeviceTable(s.list(), s.now())
	_, err := fmt.Fprintf(s.w, "%s %s %s\n%s\n", e.Time.Format(time.TimeOnly), e.DeviceID, e.Kind(), table)
	return err
}

// DeviceTable lays out devices as NAME, ID, STATUS, LAST SEEN columns.
func DeviceTable(devices []model.Device, now time.Time) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("NAME", "ID", "STATUS", "LAST SEEN")
	for i := range devices {
		d := &devices[i]
		table.AddRow(d.Name(), d.ID, d.Status, Since(d.LastSeen, now))
	}
	return table
}

// Since formats how long ago t was, or "never" for the zero time.
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Truncate(time.Second).String() + " ago"
}

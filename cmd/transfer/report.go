package transfer

import (
	"fmt"
	"io"

	"sshmanager/pkg/transfer"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func printResults(w io.Writer, items []transfer.TransferItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No transfers.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Direction", "Status", "Progress", "Size", "Destination", "Error"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, item := range items {
		table.Append([]string{
			item.FileName,
			item.Direction.String(),
			statusLabel(item.Status),
			fmt.Sprintf("%.0f%%", item.Progress),
			formatBytes(item.TotalBytes),
			item.DestinationPath(),
			item.ErrorMessage,
		})
	}
	table.Render()
}

func statusLabel(s transfer.TransferStatus) string {
	switch s {
	case transfer.StatusCompleted:
		return color.New(color.FgGreen).Render(s.String())
	case transfer.StatusFailed:
		return color.New(color.FgRed, color.OpBold).Render(s.String())
	case transfer.StatusCancelled:
		return color.New(color.FgYellow).Render(s.String())
	default:
		return s.String()
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

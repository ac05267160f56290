// Package render formats fan state for the operator CLI.
package render

import (
	"fmt"
	"io"
	"strconv"

	"codeberg.org/mutker/fand/internal/fan"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	faultStyle  = cellStyle.Foreground(lipgloss.Color("9"))
)

const statusColumn = 3

// SystemFan writes the "show system fan" view: one table row per fan
// followed by the override line.
func SystemFan(w io.Writer, fans []fan.Record, ov fan.Override) error {
	rows := make([][]string, 0, len(fans))
	for _, f := range fans {
		rows = append(rows, []string{
			f.Name,
			f.Direction.Label(),
			f.Speed.String(),
			f.Status.String(),
			strconv.Itoa(f.RPM),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Name", "Direction", "Speed", "Status", "RPM").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(fans) && fans[row].Status == fan.Fault {
				return faultStyle
			}
			return cellStyle
		})

	if _, err := fmt.Fprintln(w, titleStyle.Render("Fan information")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, OverrideLine(ov))
	return err
}

func OverrideLine(ov fan.Override) string {
	if ov.Active {
		return "Fan speed override is set to : " + ov.Speed.String()
	}
	return "Fan speed override is not configured"
}

// RunningConfig writes the fan fragment of "show running-config". Nothing is
// written unless an override is active.
func RunningConfig(w io.Writer, ov fan.Override) error {
	if !ov.Active {
		return nil
	}
	_, err := fmt.Fprintf(w, "fan-speed %s\n", ov.Speed)
	return err
}

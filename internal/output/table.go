package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// RenderTable draws rows (first row is the header) as a bordered table.
func RenderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(rows[0]...).
		Rows(rows[1:]...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// PrintSummary renders the CSV at path and lists the generated artifacts.
func PrintSummary(w io.Writer, csvPath string, artifacts []string) error {
	rows, err := ReadCSV(csvPath)
	if err != nil {
		return fmt.Errorf("read summary %s: %w", csvPath, err)
	}

	fmt.Fprintln(w, titleStyle.Render("Summary"))
	if len(rows) <= 1 {
		fmt.Fprintln(w, faintStyle.Render("(no successful points)"))
	}
	fmt.Fprintln(w, RenderTable(rows))

	fmt.Fprintln(w, titleStyle.Render("Artifacts"))
	for _, a := range artifacts {
		fmt.Fprintf(w, "  - %s\n", a)
	}
	return nil
}

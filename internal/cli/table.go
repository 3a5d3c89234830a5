package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorSecondary = lipgloss.Color("#10B981")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	MutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)
)

// Table renders rows under headers with a rounded border
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
	return t.Render()
}

// PrintTable writes a titled table
func PrintTable(w io.Writer, title string, headers []string, rows [][]string) {
	if title != "" {
		fmt.Fprintln(w, TitleStyle.Render(title))
	}
	fmt.Fprintln(w, Table(headers, rows))
}

// PrintReplies writes one numbered row per reply
func PrintReplies(w io.Writer, title string, replies []string) {
	rows := make([][]string, 0, len(replies))
	for i, r := range replies {
		rows = append(rows, []string{fmt.Sprint(i + 1), r})
	}
	PrintTable(w, title, []string{"#", "Reply"}, rows)
}

// PrintInfo writes a muted status line
func PrintInfo(w io.Writer, msg string) {
	fmt.Fprintln(w, MutedStyle.Render(msg))
}

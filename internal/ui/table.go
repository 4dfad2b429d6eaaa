package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
)

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// MatchView renders the details of a new match.
func MatchView(m *peer.Match) string {
	role := "answering"
	if m.Initiator {
		role = "initiating"
	}

	rows := [][]string{
		{"Partner", shortID(m.PartnerID)},
		{"Country", m.PartnerCountry},
		{"Room", m.RoomID},
		{"Role", role},
	}
	return styledTable([]string{"Match", ""}, rows).Render()
}

// RenderMatch prints MatchView.
func RenderMatch(m *peer.Match) {
	fmt.Printf("\n%s %s\n%s\n\n", IconPeer, TitleStyle.Render("Matched with a stranger"), MatchView(m))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// Palette shared by every command's output.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colourError).Bold(true)
	labelStyle   = lipgloss.NewStyle().Width(14).Foreground(colourMuted)
)

// riskStyle colours a risk level by severity.
func riskStyle(risk domain.RiskLevel) lipgloss.Style {
	switch risk {
	case domain.RiskReadOnly:
		return successStyle
	case domain.RiskMutating:
		return warningStyle
	default:
		return errorStyle
	}
}

// statusStyle colours a plan, step or rollback status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(domain.PlanCompleted), string(domain.StepCompleted), string(domain.RollbackSuccess):
		return successStyle
	case string(domain.PlanFailed), string(domain.RollbackFailed), string(domain.RollbackPartial):
		return errorStyle
	case string(domain.PlanCancelled), string(domain.StepSkipped):
		return mutedStyle
	default:
		return warningStyle
	}
}

// field renders an aligned "label value" line.
func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

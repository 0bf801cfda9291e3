package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	IconStreak    = "🔥"
	IconTrophy    = "🏆"
	IconChart     = "📈"
	IconCalendar  = "📅"
	IconWarn      = "⚠️"
	IconError     = "🧨"
	IconDone      = "✅"
	IconLock      = "🔒"
	IconSparkle   = "✨"
	IconCrystal   = "💎"
	progressWidth = 20
)

var (
	cPrimary = lipgloss.Color("63")
	cAccent  = lipgloss.Color("205")
	cGood    = lipgloss.Color("42")
	cWarn    = lipgloss.Color("214")
	cBad     = lipgloss.Color("196")
	cMuted   = lipgloss.Color("244")
	cGold    = lipgloss.Color("220")
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// Percent colours a 0-100 score: green from 70, orange from 40, red below.
func Percent(v float64) string {
	s := fmt.Sprintf("%.1f%%", v)
	switch {
	case v >= 70:
		return Good.Render(s)
	case v >= 40:
		return Warn.Render(s)
	default:
		return Bad.Render(s)
	}
}

// ProgressBar renders a fixed-width bar for a 0-100 value.
func ProgressBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * progressWidth)
	return Gold.Render(strings.Repeat("█", filled)) + Muted.Render(strings.Repeat("░", progressWidth-filled))
}

// TierBadge renders a tier name in its configured hex colour, if any.
func TierBadge(name, color string) string {
	style := Gold
	if color != "" {
		style = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return style.Render(IconCrystal + " " + name)
}

func Momentum(m string) string {
	switch m {
	case "increasing":
		return Good.Render("↑ " + m)
	case "decreasing":
		return Bad.Render("↓ " + m)
	default:
		return Muted.Render("→ " + m)
	}
}

func Tags(tags []string, style lipgloss.Style) string {
	if len(tags) == 0 {
		return Muted.Render("none")
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = style.Render(t)
	}
	return strings.Join(out, ", ")
}

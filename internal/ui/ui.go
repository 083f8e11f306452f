// Package ui provides terminal styling helpers for the CLI.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // bright blue
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // bright green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // bright yellow
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // bright red
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// RenderAccent styles informational markers.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass styles success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles warning markers.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderErr styles failure markers.
func RenderErr(s string) string { return errStyle.Render(s) }

// RenderFaint styles secondary detail text.
func RenderFaint(s string) string { return faintStyle.Render(s) }

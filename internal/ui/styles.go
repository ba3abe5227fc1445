package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the shell.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
)

// Banner style for the activation line.
var Banner = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorSuccess)

// Prompt style for input prompts.
var Prompt = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// ArticleTitle style for numbered article headings.
var ArticleTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255"))

// SourceLine style for article links.
var SourceLine = lipgloss.NewStyle().
	Foreground(colorPrimary)

// Muted style for separators and hints.
var Muted = lipgloss.NewStyle().
	Foreground(colorSecondary)

// Warning style for degraded results and errors.
var Warning = lipgloss.NewStyle().
	Foreground(colorWarning)

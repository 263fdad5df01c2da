package tui

import "github.com/charmbracelet/lipgloss"

var (
	WelcomeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	UserIconStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	AsstIconStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	AuthorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	PromptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	ThinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	SystemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	CommandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("147")).Bold(true)
	TaskStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
	ActionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	ClosedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

	TabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	ActiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62")).Padding(0, 1)
	AwaitingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("222"))

	FooterHead = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	FooterMeta = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	ErrorLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	BulletStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
	HeadingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true)
	CodeGutterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	BoldInlineStyle = lipgloss.NewStyle().Bold(true)
	InlineCodeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	CompletionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	CompletionSelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
)

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/batalabs/convo/internal/domain"
)

type pickerMode int

const (
	pickerBrowse pickerMode = iota
	pickerConfirmDelete
)

// SessionPicker is an overlay listing stored sessions of the workspace.
type SessionPicker struct {
	sessions    []domain.Session
	filtered    []domain.Session
	selectedIdx int
	filter      string
	active      bool
	mode        pickerMode
	// open marks sessions that already have a tab.
	open map[string]bool
}

// NewSessionPicker creates an active picker over sessions.
func NewSessionPicker(sessions []domain.Session, open map[string]bool) *SessionPicker {
	if open == nil {
		open = map[string]bool{}
	}
	return &SessionPicker{sessions: sessions, filtered: sessions, active: true, open: open}
}

// IsActive reports whether the picker is shown.
func (p *SessionPicker) IsActive() bool { return p != nil && p.active }

// Dismiss closes the picker.
func (p *SessionPicker) Dismiss() { p.active = false }

// Mode returns the current interaction mode.
func (p *SessionPicker) Mode() pickerMode { return p.mode }

// Selected returns the highlighted session, or nil.
func (p *SessionPicker) Selected() *domain.Session {
	if len(p.filtered) == 0 {
		return nil
	}
	return &p.filtered[p.selectedIdx]
}

func (p *SessionPicker) MoveUp() {
	if p.selectedIdx > 0 {
		p.selectedIdx--
	}
}

func (p *SessionPicker) MoveDown() {
	if p.selectedIdx < len(p.filtered)-1 {
		p.selectedIdx++
	}
}

// AppendFilter adds r to the filter.
func (p *SessionPicker) AppendFilter(r rune) {
	p.filter += string(r)
	p.applyFilter()
}

// BackspaceFilter removes the last rune of the filter.
func (p *SessionPicker) BackspaceFilter() {
	if p.filter == "" {
		return
	}
	r := []rune(p.filter)
	p.filter = string(r[:len(r)-1])
	p.applyFilter()
}

// StartDelete asks for confirmation before deleting the highlighted
// session. Sessions open in a tab cannot be deleted.
func (p *SessionPicker) StartDelete() bool {
	sel := p.Selected()
	if sel == nil || p.open[sel.ID] {
		return false
	}
	p.mode = pickerConfirmDelete
	return true
}

// CancelMode returns to browsing.
func (p *SessionPicker) CancelMode() { p.mode = pickerBrowse }

// RemoveSelected drops the highlighted session from the list and returns
// its id.
func (p *SessionPicker) RemoveSelected() string {
	sel := p.Selected()
	p.mode = pickerBrowse
	if sel == nil {
		return ""
	}
	id := sel.ID
	kept := p.sessions[:0:0]
	for _, s := range p.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	p.sessions = kept
	p.applyFilter()
	return id
}

func (p *SessionPicker) applyFilter() {
	p.selectedIdx = 0
	if p.filter == "" {
		p.filtered = p.sessions
		return
	}
	lower := strings.ToLower(p.filter)
	p.filtered = nil
	for _, s := range p.sessions {
		if strings.Contains(strings.ToLower(s.Title), lower) || strings.Contains(strings.ToLower(s.ID), lower) {
			p.filtered = append(p.filtered, s)
		}
	}
}

// View renders the picker.
func (p *SessionPicker) View(width int) string {
	width = max(width, 40)
	var b strings.Builder
	b.WriteString(FooterHead.Render("Sessions") + "\n")

	if p.mode == pickerConfirmDelete {
		title := ""
		if sel := p.Selected(); sel != nil {
			title = sel.Title
		}
		b.WriteString(ErrorLineStyle.Render(fmt.Sprintf("  Delete %q? (y/n)", title)) + "\n\n")
	} else {
		b.WriteString(FooterMeta.Render("  Filter: "+p.filter) + "\n\n")
	}

	if len(p.filtered) == 0 {
		b.WriteString(FooterMeta.Render("  No matching sessions.") + "\n")
	}
	const maxVisible = 10
	start := 0
	if p.selectedIdx >= maxVisible {
		start = p.selectedIdx - maxVisible + 1
	}
	end := min(start+maxVisible, len(p.filtered))
	for i := start; i < end; i++ {
		s := p.filtered[i]
		cursor := "  "
		if i == p.selectedIdx {
			cursor = "> "
		}
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		mark := " "
		if p.open[s.ID] {
			mark = "•"
		}
		line := fmt.Sprintf("%s%s %-8s  %-30s  %s", cursor, mark, id, TruncateToWidth(s.Title, 30), TimeAgo(s.UpdatedAt))
		line = TruncateToWidth(line, width)
		if i == p.selectedIdx {
			b.WriteString(CompletionSelStyle.Render(line))
		} else {
			b.WriteString(FooterMeta.Render(line))
		}
		b.WriteString("\n")
	}
	if len(p.filtered) > maxVisible {
		b.WriteString(FooterMeta.Render(fmt.Sprintf("  ... %d total", len(p.filtered))) + "\n")
	}

	b.WriteString("\n")
	if p.mode == pickerConfirmDelete {
		b.WriteString(FooterMeta.Render("  y=delete  n/Esc=cancel"))
	} else {
		b.WriteString(FooterMeta.Render("  Enter=open in tab  ctrl+s=switch this tab  ctrl+d=delete  Esc=close"))
	}
	return b.String()
}

// TimeAgo renders t relative to now in the coarsest sensible unit.
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

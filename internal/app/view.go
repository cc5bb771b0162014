package app

import (
	"fmt"
	"strings"

	"github.com/igun997/ai-live/internal/input"
	"github.com/igun997/ai-live/internal/session"
	"github.com/igun997/ai-live/internal/ui"
)

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.transcriptWidth()))
	visible := m.transcriptVisibleLines()
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return defaultVisibleLines
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + notice(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

// transcriptVisibleLines excludes the panel header and the summary panel.
func (m Model) transcriptVisibleLines() int {
	h := m.contentHeight() - 1
	if m.sess.Summarized() {
		h -= len(m.summaryLines())
	}
	return max(1, h)
}

func (m Model) transcriptWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(30, m.width-2)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Status bar
	sections = append(sections, m.renderStatusBar())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Main content: summary (once available) above the transcript
	sections = append(sections, m.renderMainContent())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Notice bar
	if m.notice != "" {
		sections = append(sections, m.renderNoticeBar())
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("AI LIVE")

	var sessionInfo string
	if m.sess.ID != "" {
		sessionInfo = ui.DimStyle.Render(" · " + m.sess.ID)
	}

	var lang string
	if tag := strings.ToUpper(m.sess.Language); tag != "" {
		lang = " " + ui.LanguageBadgeStyle.Render("["+tag+"]")
	}

	return title + sessionInfo + lang
}

func (m Model) renderStatusBar() string {
	var conn string
	switch m.statusText {
	case StatusConnected:
		conn = ui.ConnectedStyle.Render("● " + m.statusText)
	case StatusConnecting:
		conn = ui.StatusStyle.Render("○ " + m.statusText)
		if m.endpoint != "" {
			conn += ui.DimStyle.Render(" " + m.endpoint)
		}
	default:
		conn = ui.DisconnectedStyle.Render("● " + m.statusText)
	}

	var activity string
	switch {
	case m.sess.Summarized():
		activity = ui.IdleDotStyle.Render("■ DONE")
	case m.sess.Connection != session.Open:
	case m.sess.Activity == session.Recording:
		activity = ui.RecordingDotStyle.Render("● REC")
	case m.sess.Activity == session.Speaking:
		activity = ui.SpeakingDotStyle.Render("◆ SPEAKING")
	case m.sess.Activity == session.Processing:
		activity = ui.ProcessingStyle.Render("◇ WAITING")
	default:
		activity = ui.IdleDotStyle.Render("○ IDLE")
	}

	var indicator string
	if m.indicator != "" {
		indicator = "  " + m.spinner.View() + ui.ProcessingStyle.Render(m.indicator)
	}

	out := conn
	if activity != "" {
		out += "  " + activity
	}
	return out + indicator
}

func (m Model) renderMainContent() string {
	height := m.contentHeight()
	width := m.transcriptWidth()

	var lines []string
	if m.sess.Summarized() {
		lines = append(lines, m.summaryLines()...)
	}

	var badge string
	if m.transcriptLive {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	} else {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}
	lines = append(lines, ui.PanelTitleStyle.Render("TRANSCRIPT")+badge)

	display := m.transcriptLines(width)
	visible := m.transcriptVisibleLines()
	switch {
	case len(display) > 0:
		start := 0
		if m.transcriptLive {
			if len(display) > visible {
				start = len(display) - visible
			}
		} else {
			start = m.transcriptScroll
		}
		if start < 0 {
			start = 0
		}
		end := min(start+visible, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	case m.sess.Connection == session.Connecting:
		lines = append(lines, ui.DimStyle.Render("  Connecting to the voice server..."))
	case m.sess.Connection == session.Closed && !m.sess.Summarized():
		lines = append(lines, "")
		lines = append(lines, ui.ErrorTextStyle.Render("  Not connected. Restart to begin a new conversation."))
	case !m.sess.Summarized():
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  "+m.talkHint()))
	}

	// Pad to height
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

// transcriptLines renders every turn, wrapping long text under its prefix.
func (m Model) transcriptLines(width int) []string {
	// Prefix: "[HH:MM:SS] AGENT " = ~17 chars visible
	const prefixWidth = 17
	textWidth := max(10, width-prefixWidth-2)
	indent := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, turn := range m.sess.Transcript.Turns() {
		ts := ui.TimestampStyle.Render(turn.At.Format("[15:04:05]"))
		var label string
		render := func(s string) string { return s }
		switch {
		case turn.Speaker == session.User:
			label = ui.UserLabelStyle.Render("YOU   ")
			if tag := turn.LanguageTag(); tag != "" {
				label = ui.UserLabelStyle.Render("YOU ") + ui.LanguageBadgeStyle.Render("["+tag+"]") + " "
			}
		case turn.Speaker == session.Agent:
			label = ui.AgentLabelStyle.Render("AGENT ")
		case turn.Kind == session.KindError:
			label = ui.ErrorStyle.Render("!     ")
			render = func(s string) string { return ui.ErrorTextStyle.Render(s) }
		default:
			label = ui.SystemLabelStyle.Render("·     ")
			render = func(s string) string { return ui.NoticeStyle.Render(s) }
		}
		wrapped := wrapText(turn.Text, textWidth)
		out = append(out, ts+" "+label+render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			out = append(out, indent+render(wl))
		}
	}
	return out
}

func (m Model) summaryLines() []string {
	sum := m.sess.Summary
	if sum == nil {
		return nil
	}
	width := max(20, m.transcriptWidth()-4)

	var body []string
	body = append(body, ui.SummaryTitleStyle.Render("CONVERSATION SUMMARY"))
	if sum.Text != "" {
		body = append(body, wrapText(sum.Text, width)...)
	} else {
		body = append(body, ui.DimStyle.Render("No summary was generated."))
	}

	if s := sum.Sentiment; s.Overall != "" || s.Score != nil || s.Details != "" {
		line := ui.DimStyle.Render("Sentiment: ")
		overall := s.Overall
		if overall == "" {
			overall = "unknown"
		}
		line += ui.SentimentStyle(s.Overall).Render(overall)
		if s.Score != nil {
			line += ui.DimStyle.Render(fmt.Sprintf(" (%.2f)", *s.Score))
		}
		body = append(body, line)
		if s.Details != "" {
			for _, wl := range wrapText(s.Details, width) {
				body = append(body, ui.DimStyle.Render(wl))
			}
		}
	}

	stats := fmt.Sprintf("Turns: %d", sum.TurnCount)
	if len(sum.LanguagesUsed) > 0 {
		stats += "  Languages: " + strings.ToUpper(strings.Join(sum.LanguagesUsed, ", "))
	}
	body = append(body, ui.DimStyle.Render(stats))

	return strings.Split(ui.SummaryBoxStyle.Render(strings.Join(body, "\n")), "\n")
}

func (m Model) talkHint() string {
	if m.binder.Mode() == input.ModeHold {
		return "Hold Space (or the left mouse button) and speak"
	}
	return "Press Space to talk, press again to send (or hold the left mouse button)"
}

func (m Model) renderNoticeBar() string {
	if m.noticeTransient {
		return ui.NoticeStyle.Render(m.notice)
	}
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.notice)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.sess.Interactive() {
		talk := " Talk"
		if m.sess.Activity == session.Recording && m.binder.Mode() == input.ModeToggle {
			talk = " Send"
		}
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(talk))
		parts = append(parts, ui.FooterKeyStyle.Render("e")+ui.FooterDescStyle.Render(" End session"))
		parts = append(parts, ui.FooterKeyStyle.Render("↑↓")+ui.FooterDescStyle.Render(" Scroll"))
		parts = append(parts, ui.FooterKeyStyle.Render("G")+ui.FooterDescStyle.Render(" Live"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

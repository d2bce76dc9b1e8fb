package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/gmsas95/carecache/internal/analytics"
	"github.com/gmsas95/carecache/internal/app"
	"github.com/gmsas95/carecache/internal/chat"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	emergencyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#DC2626")).
			Padding(0, 1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)
)

// NewRenderer returns a styled renderer for terminals and a plain one
// otherwise
func NewRenderer(out io.Writer, styled bool, width int) app.Renderer {
	if !styled {
		plain := chat.NewTextRenderer(out)
		return plain.Render
	}
	r := newStyledRenderer(out, width)
	return r.Render
}

// styledRenderer draws reply parts with lipgloss and renders assistant text
// as markdown
type styledRenderer struct {
	out      io.Writer
	width    int
	markdown *glamour.TermRenderer
}

func newStyledRenderer(out io.Writer, width int) *styledRenderer {
	if width <= 0 {
		width = 80
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		md = nil
	}
	return &styledRenderer{out: out, width: width, markdown: md}
}

func (r *styledRenderer) Render(parts []chat.Response) {
	for _, part := range parts {
		part.Accept(r)
	}
}

func (r *styledRenderer) panel(title string, lines []string) {
	body := titleStyle.Render(title)
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	fmt.Fprintln(r.out, panelStyle.Width(r.width-2).Render(body))
}

func (r *styledRenderer) VisitPlain(p chat.Plain) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(p.Text); err == nil {
			fmt.Fprint(r.out, rendered)
			return
		}
	}
	fmt.Fprintln(r.out, p.Text)
}

func (r *styledRenderer) VisitEmergency(e chat.Emergency) {
	fmt.Fprintln(r.out, emergencyStyle.Render("EMERGENCY: "+e.Notice))
}

func (r *styledRenderer) VisitDiagnosis(d chat.Diagnosis) {
	lines := make([]string, 0, len(d.Conditions)+1)
	for _, c := range d.Conditions {
		lines = append(lines, "• "+c)
	}
	if d.Reasoning != "" {
		lines = append(lines, mutedStyle.Render(d.Reasoning))
	}
	r.panel("Possible conditions", lines)
}

func (r *styledRenderer) VisitSymptomAnalysis(s chat.SymptomAnalysis) {
	lines := []string{fmt.Sprintf("Overall severity %s %.1f/10", bar(s.OverallSeverity, 10, "#F59E0B"), s.OverallSeverity)}
	for _, i := range s.Intensities {
		lines = append(lines, fmt.Sprintf("%-16s %s %.1f", i.Symptom, bar(i.Intensity, 10, "#8B5CF6"), i.Intensity))
	}
	r.panel("Symptom analysis", lines)
}

func (r *styledRenderer) VisitAdvice(a chat.Advice) {
	lines := make([]string, 0, len(a.Steps)+1)
	for n, s := range a.Steps {
		line := fmt.Sprintf("%d. %s", n+1, titleStyle.Render(s.Step))
		if s.Details != "" {
			line += " " + s.Details
		}
		lines = append(lines, line)
	}
	if a.Disclaimer != "" {
		lines = append(lines, mutedStyle.Render(a.Disclaimer))
	}
	r.panel("Recommended steps", lines)
}

func (r *styledRenderer) VisitCareWarnings(c chat.CareWarnings) {
	lines := make([]string, 0, len(c.Warnings))
	for _, w := range c.Warnings {
		lines = append(lines, errorStyle.Render("! ")+w)
	}
	r.panel("Seek care if", lines)
}

func (r *styledRenderer) VisitError(e chat.ErrorReply) {
	fmt.Fprintln(r.out, errorStyle.Render("Error: "+e.Message))
}

func (r *styledRenderer) VisitProviders(p chat.ProviderRecommendations) {
	title := "Nearby providers"
	if p.ProviderType != "" {
		title += " · " + p.ProviderType
	}
	var lines []string
	if p.Reason != "" {
		lines = append(lines, mutedStyle.Render(p.Reason))
	}
	for _, prov := range p.Providers {
		line := titleStyle.Render(prov.Name)
		if prov.DistanceKm != nil {
			line += fmt.Sprintf(" (%.1f km)", *prov.DistanceKm)
		}
		if prov.Rating != nil {
			line += fmt.Sprintf(" ★ %.1f", *prov.Rating)
		}
		lines = append(lines, line)
		if prov.Address != "" {
			lines = append(lines, "  "+prov.Address)
		}
		if prov.Phone != nil && *prov.Phone != "" {
			lines = append(lines, "  "+*prov.Phone)
		}
	}
	r.panel(title, lines)
}

// bar draws value out of limit as a fixed-width colored bar
func bar(value, limit float64, color string) string {
	const width = 20
	if limit <= 0 {
		return ""
	}
	filled := int(value / limit * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", width-filled))
}

func sortedSeries(in *analytics.Intensity) []string {
	names := make([]string, 0, len(in.Symptoms))
	for name := range in.Symptoms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package chat

import (
	"fmt"
	"io"
	"strings"
)

// TextRenderer writes response parts as plain text
type TextRenderer struct {
	w io.Writer
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// Render writes every part in order
func (r *TextRenderer) Render(parts []Response) {
	for _, part := range parts {
		part.Accept(r)
	}
}

func (r *TextRenderer) VisitPlain(p Plain) {
	fmt.Fprintln(r.w, p.Text)
}

func (r *TextRenderer) VisitEmergency(e Emergency) {
	fmt.Fprintf(r.w, "EMERGENCY: %s\n", e.Notice)
}

func (r *TextRenderer) VisitDiagnosis(d Diagnosis) {
	fmt.Fprintln(r.w, "Possible conditions:")
	for _, c := range d.Conditions {
		fmt.Fprintf(r.w, "  - %s\n", c)
	}
	if d.Reasoning != "" {
		fmt.Fprintf(r.w, "  %s\n", d.Reasoning)
	}
}

func (r *TextRenderer) VisitSymptomAnalysis(s SymptomAnalysis) {
	fmt.Fprintf(r.w, "Overall severity: %.1f/10\n", s.OverallSeverity)
	for _, i := range s.Intensities {
		fmt.Fprintf(r.w, "  %s: %.1f\n", i.Symptom, i.Intensity)
	}
}

func (r *TextRenderer) VisitAdvice(a Advice) {
	if len(a.Steps) > 0 {
		fmt.Fprintln(r.w, "Recommended steps:")
	}
	for n, s := range a.Steps {
		line := s.Step
		if s.Details != "" {
			line += ": " + s.Details
		}
		fmt.Fprintf(r.w, "  %d. %s\n", n+1, line)
	}
	if a.Disclaimer != "" {
		fmt.Fprintf(r.w, "Note: %s\n", a.Disclaimer)
	}
}

func (r *TextRenderer) VisitCareWarnings(c CareWarnings) {
	fmt.Fprintln(r.w, "Seek care if:")
	for _, w := range c.Warnings {
		fmt.Fprintf(r.w, "  - %s\n", w)
	}
}

func (r *TextRenderer) VisitError(e ErrorReply) {
	fmt.Fprintf(r.w, "Error: %s\n", e.Message)
}

func (r *TextRenderer) VisitProviders(p ProviderRecommendations) {
	header := "Nearby providers"
	if p.ProviderType != "" {
		header += " (" + p.ProviderType + ")"
	}
	fmt.Fprintln(r.w, header+":")
	if p.Reason != "" {
		fmt.Fprintf(r.w, "  %s\n", p.Reason)
	}
	for _, prov := range p.Providers {
		var details []string
		if prov.Address != "" {
			details = append(details, prov.Address)
		}
		if prov.DistanceKm != nil {
			details = append(details, fmt.Sprintf("%.1f km", *prov.DistanceKm))
		}
		if prov.Phone != nil && *prov.Phone != "" {
			details = append(details, *prov.Phone)
		}
		if len(details) == 0 {
			fmt.Fprintf(r.w, "  - %s\n", prov.Name)
			continue
		}
		fmt.Fprintf(r.w, "  - %s, %s\n", prov.Name, strings.Join(details, ", "))
	}
}

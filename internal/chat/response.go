package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names a response variant
type Kind string

const (
	KindPlain           Kind = "plain"
	KindEmergency       Kind = "emergency"
	KindDiagnosis       Kind = "diagnosis"
	KindSymptomAnalysis Kind = "symptom_analysis"
	KindAdvice          Kind = "advice"
	KindCareWarnings    Kind = "care_warnings"
	KindError           Kind = "error"
	KindProviders       Kind = "provider_recommendations"
)

const defaultEmergencyNotice = "Seek emergency medical care immediately."

// Response is one part of an assistant reply. The set of variants is closed;
// renderers implement Visitor so a new variant fails to compile until every
// renderer handles it.
type Response interface {
	Kind() Kind
	Accept(v Visitor)
}

// Visitor handles each response variant
type Visitor interface {
	VisitPlain(Plain)
	VisitEmergency(Emergency)
	VisitDiagnosis(Diagnosis)
	VisitSymptomAnalysis(SymptomAnalysis)
	VisitAdvice(Advice)
	VisitCareWarnings(CareWarnings)
	VisitError(ErrorReply)
	VisitProviders(ProviderRecommendations)
}

type Plain struct {
	Text string
}

type Emergency struct {
	Notice string
}

type Diagnosis struct {
	Conditions []string
	Reasoning  string
}

type SymptomIntensity struct {
	Symptom   string  `json:"symptom_name"`
	Intensity float64 `json:"intensity"`
}

type SymptomAnalysis struct {
	OverallSeverity float64
	Intensities     []SymptomIntensity
}

type AdviceStep struct {
	Step    string `json:"step"`
	Details string `json:"details"`
}

type Advice struct {
	Steps      []AdviceStep
	Disclaimer string
}

type CareWarnings struct {
	Warnings []string
}

type ErrorReply struct {
	Message string
}

// Provider is a nearby healthcare provider. Optional fields are nil when the
// backend did not know them.
type Provider struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        *string  `json:"phone"`
	Website      *string  `json:"website"`
	Rating       *float64 `json:"rating"`
	TotalRatings *int     `json:"total_ratings"`
	OpenNow      *bool    `json:"open_now"`
	DistanceKm   *float64 `json:"distance_km"`
	PlaceID      string   `json:"place_id"`
	Types        []string `json:"types"`
	MapsURL      string   `json:"google_maps_url"`
}

type ProviderRecommendations struct {
	Providers    []Provider
	Reason       string
	ProviderType string
}

func (Plain) Kind() Kind                   { return KindPlain }
func (Emergency) Kind() Kind               { return KindEmergency }
func (Diagnosis) Kind() Kind               { return KindDiagnosis }
func (SymptomAnalysis) Kind() Kind         { return KindSymptomAnalysis }
func (Advice) Kind() Kind                  { return KindAdvice }
func (CareWarnings) Kind() Kind            { return KindCareWarnings }
func (ErrorReply) Kind() Kind              { return KindError }
func (ProviderRecommendations) Kind() Kind { return KindProviders }

func (r Plain) Accept(v Visitor)                   { v.VisitPlain(r) }
func (r Emergency) Accept(v Visitor)               { v.VisitEmergency(r) }
func (r Diagnosis) Accept(v Visitor)               { v.VisitDiagnosis(r) }
func (r SymptomAnalysis) Accept(v Visitor)         { v.VisitSymptomAnalysis(r) }
func (r Advice) Accept(v Visitor)                  { v.VisitAdvice(r) }
func (r CareWarnings) Accept(v Visitor)            { v.VisitCareWarnings(r) }
func (r ErrorReply) Accept(v Visitor)              { v.VisitError(r) }
func (r ProviderRecommendations) Accept(v Visitor) { v.VisitProviders(r) }

// ReminderSuggestion is a follow-up the assistant proposes. It is kept as
// data on the message and never scheduled.
type ReminderSuggestion struct {
	Title       string `json:"reminder_title"`
	Description string `json:"reminder_description"`
	SuggestedAt string `json:"suggested_time"`
	Frequency   string `json:"suggested_frequency"`
}

type wireReply struct {
	Response           string   `json:"response"`
	Emergency          bool     `json:"emergency"`
	Notice             string   `json:"notice"`
	PossibleDiagnosis  []string `json:"possible_diagnosis"`
	DiagnosisReasoning string   `json:"diagnosis_reasoning"`
	SymptomAnalysis    *struct {
		OverallSeverity float64            `json:"overall_severity"`
		Intensities     []SymptomIntensity `json:"intensities"`
	} `json:"symptom_analysis"`
	Advice                    []AdviceStep `json:"advice"`
	WhenToSeekCare            []string     `json:"when_to_seek_care"`
	Error                     string       `json:"error"`
	Disclaimer                string       `json:"disclaimer"`
	HealthcareRecommendations *struct {
		Providers            []Provider `json:"providers"`
		RecommendationReason string     `json:"recommendation_reason"`
		ProviderType         string     `json:"provider_type"`
	} `json:"healthcare_recommendations"`
	ReminderSuggestions []ReminderSuggestion `json:"ai_reminder_suggestions"`
}

// DecodeReply turns an assistant payload into its response parts, in display
// order, plus any reminder suggestions. A payload with none of the known
// fields is an error.
func DecodeReply(raw []byte) ([]Response, []ReminderSuggestion, error) {
	var w wireReply
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, nil, fmt.Errorf("failed to decode assistant reply: %w", err)
	}

	var parts []Response
	if text := strings.TrimSpace(w.Response); text != "" {
		parts = append(parts, Plain{Text: text})
	}
	if w.Emergency {
		notice := strings.TrimSpace(w.Notice)
		if notice == "" {
			notice = defaultEmergencyNotice
		}
		parts = append(parts, Emergency{Notice: notice})
	}
	if len(w.PossibleDiagnosis) > 0 {
		parts = append(parts, Diagnosis{Conditions: w.PossibleDiagnosis, Reasoning: w.DiagnosisReasoning})
	}
	if sa := w.SymptomAnalysis; sa != nil && (sa.OverallSeverity > 0 || len(sa.Intensities) > 0) {
		parts = append(parts, SymptomAnalysis{OverallSeverity: sa.OverallSeverity, Intensities: sa.Intensities})
	}
	if len(w.Advice) > 0 || w.Disclaimer != "" {
		parts = append(parts, Advice{Steps: w.Advice, Disclaimer: w.Disclaimer})
	}
	if len(w.WhenToSeekCare) > 0 {
		parts = append(parts, CareWarnings{Warnings: w.WhenToSeekCare})
	}
	if msg := strings.TrimSpace(w.Error); msg != "" {
		parts = append(parts, ErrorReply{Message: msg})
	}
	if hr := w.HealthcareRecommendations; hr != nil && len(hr.Providers) > 0 {
		parts = append(parts, ProviderRecommendations{
			Providers:    hr.Providers,
			Reason:       hr.RecommendationReason,
			ProviderType: hr.ProviderType,
		})
	}

	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("assistant reply has no recognizable content")
	}
	return parts, w.ReminderSuggestions, nil
}

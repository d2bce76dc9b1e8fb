package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/carecache/internal/app"
	"github.com/gmsas95/carecache/internal/chat"
	"github.com/gmsas95/carecache/internal/config"
	"github.com/gmsas95/carecache/internal/persist"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := func(v any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}
		switch r.URL.Path {
		case "/patient/profile/p-1":
			reply(map[string]any{
				"success": true,
				"profile": map[string]any{
					"id":                 "p-1",
					"name":               "Jane Doe",
					"birth_date":         "1980-01-01",
					"gender":             "female",
					"active_medications": []map[string]any{{"name": "Metformin", "prescriber": "Dr. Lee", "status": "active"}},
					"medical_conditions": []map[string]any{{"name": "Asthma", "status": "active"}},
				},
			})
		case "/analytics/symptom-intensity":
			reply(map[string]any{"success": true, "data": map[string]any{
				"dates": []string{"2026-03-01"},
				"symptoms": map[string]any{"fever": map[string]any{
					"name": "fever",
					"data": []map[string]any{{"date": "2026-03-01", "intensity": 8, "occurrences": 1}},
				}},
			}})
		case "/analytics/symptom-frequency":
			reply(map[string]any{"success": true, "data": []map[string]any{
				{"symptom": "cough", "frequency": 1},
				{"symptom": "fever", "frequency": 3},
			}})
		case "/analytics/symptom-summary":
			reply(map[string]any{"success": true, "summary": map[string]any{
				"total_symptoms_recorded": 4,
				"most_frequent_symptom":   "fever",
				"most_frequent_count":     3,
			}})
		case "/chat":
			reply(map[string]any{"session_id": 1, "message": map[string]any{"content": "Drink fluids."}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.API.BaseURL = srv.URL
	cfg.Patient.DefaultID = "p-1"

	application := app.NewWithStorage(cfg, persist.NewMemory(), nil, "test")
	t.Cleanup(func() { _ = application.Close() })
	return application
}

func plainOptions(out *bytes.Buffer) Options {
	return Options{Out: out, In: strings.NewReader(""), Width: 80}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"1234567890", "1234...7890"},
		{"1234567890abcdef", "1234...cdef"},
		{"short", "***"},
		{"", "***"},
		{"1234567", "***"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, maskToken(tt.token), "token %q", tt.token)
	}
}

func TestEnabledLabel(t *testing.T) {
	assert.Equal(t, "enabled", enabledLabel(true))
	assert.Equal(t, "disabled", enabledLabel(false))
}

func TestHandleProfileCommand(t *testing.T) {
	application := newTestApp(t)
	var out bytes.Buffer

	require.NoError(t, HandleProfileCommand(context.Background(), nil, application, plainOptions(&out)))
	text := out.String()
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "female")
	assert.Contains(t, text, "  - Metformin (Dr. Lee) [active]")
	assert.Contains(t, text, "  - Asthma [active]")
	assert.Contains(t, text, "(fresh)")

	out.Reset()
	err := HandleProfileCommand(context.Background(), []string{"-id", "missing"}, application, plainOptions(&out))
	assert.Error(t, err)
}

func TestHandleContextCommand(t *testing.T) {
	application := newTestApp(t)
	var out bytes.Buffer

	require.NoError(t, HandleContextCommand(application, plainOptions(&out)))
	assert.Contains(t, out.String(), "Medications: none")

	application.Patient.FetchProfile(context.Background(), "p-1", false)
	out.Reset()
	require.NoError(t, HandleContextCommand(application, plainOptions(&out)))
	assert.Contains(t, out.String(), "Medications: Metformin")
	assert.Contains(t, out.String(), "Conditions:  Asthma")
}

func TestHandleAnalyticsCommand(t *testing.T) {
	application := newTestApp(t)
	var out bytes.Buffer

	require.NoError(t, HandleAnalyticsCommand(context.Background(), []string{"-days", "7"}, application, plainOptions(&out)))
	text := out.String()
	assert.Contains(t, text, "Symptoms recorded: 4")
	assert.Contains(t, text, "Most frequent:     fever (3)")
	assert.Contains(t, text, "75.0%")
	assert.Contains(t, text, "last 7 days")
	assert.Less(t, strings.Index(text, "fever"), strings.Index(text, "cough"))
}

func TestHandleChatCommand(t *testing.T) {
	application := newTestApp(t)
	var out bytes.Buffer

	require.NoError(t, HandleChatCommand(context.Background(), []string{"-m", "I have a fever"}, application, plainOptions(&out)))
	assert.Contains(t, out.String(), "Drink fluids.")

	msgs := application.Chat.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"Metformin"}, msgs[0].Context.Medications)
}

func TestLoginStatusLogout(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()
	var out bytes.Buffer

	assert.Error(t, HandleLoginCommand(ctx, nil, application, plainOptions(&out)))
	require.NoError(t, HandleLoginCommand(ctx, []string{"abcdefghijkl"}, application, plainOptions(&out)))
	assert.Contains(t, out.String(), "abcd...ijkl")

	out.Reset()
	require.NoError(t, HandleStatusCommand(ctx, application, plainOptions(&out)))
	assert.Contains(t, out.String(), "Token:   abcd...ijkl")
	assert.Contains(t, out.String(), "Profile: not cached")

	out.Reset()
	require.NoError(t, HandleLogoutCommand(ctx, application, plainOptions(&out)))
	token, err := application.Tokens.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestHandleConfigCommand(t *testing.T) {
	application := newTestApp(t)
	var out bytes.Buffer

	require.NoError(t, HandleConfigCommand([]string{"get", "patient.default_id"}, application.Config, plainOptions(&out)))
	assert.Equal(t, "p-1\n", out.String())

	assert.Error(t, HandleConfigCommand([]string{"get", "nope"}, application.Config, plainOptions(&out)))

	out.Reset()
	require.NoError(t, HandleConfigCommand([]string{"show"}, application.Config, plainOptions(&out)))
	assert.Contains(t, out.String(), "base_url:")

	out.Reset()
	require.NoError(t, HandleConfigCommand(nil, application.Config, plainOptions(&out)))
	assert.Contains(t, out.String(), "Usage: carecache config")
}

func TestStyledRenderer(t *testing.T) {
	var out bytes.Buffer
	render := NewRenderer(&out, true, 80)
	phone := "555-0100"
	dist := 2.5

	render([]chat.Response{
		chat.Plain{Text: "Rest well."},
		chat.Emergency{Notice: "Call 911"},
		chat.Diagnosis{Conditions: []string{"Flu"}},
		chat.SymptomAnalysis{OverallSeverity: 5, Intensities: []chat.SymptomIntensity{{Symptom: "fever", Intensity: 6}}},
		chat.Advice{Steps: []chat.AdviceStep{{Step: "Hydrate"}}, Disclaimer: "Not a diagnosis"},
		chat.CareWarnings{Warnings: []string{"Breathing trouble"}},
		chat.ErrorReply{Message: "partial"},
		chat.ProviderRecommendations{Providers: []chat.Provider{{Name: "City Clinic", Phone: &phone, DistanceKm: &dist}}},
	})

	text := out.String()
	for _, want := range []string{
		"Rest", "Call 911", "Possible conditions", "Flu", "Symptom analysis",
		"Hydrate", "Breathing trouble", "partial", "City Clinic", "555-0100",
	} {
		assert.Contains(t, text, want)
	}
}

func TestPrintHelp(t *testing.T) {
	var out bytes.Buffer
	PrintExtendedHelp(&out)
	assert.Contains(t, out.String(), "analytics")
	PrintConfigHelp(&out)
	assert.Contains(t, out.String(), "get <key>")
}

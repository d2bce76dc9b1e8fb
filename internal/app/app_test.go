package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/carecache/internal/chat"
	"github.com/gmsas95/carecache/internal/config"
	"github.com/gmsas95/carecache/internal/patient"
	"github.com/gmsas95/carecache/internal/persist"
)

type backend struct {
	summaryHits atomic.Int32
	profileHits atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	switch {
	case r.URL.Path == "/patient/profile/p-1":
		b.profileHits.Add(1)
		reply(map[string]any{
			"success": true,
			"profile": map[string]any{
				"id":                 "p-1",
				"name":               "Jane Doe",
				"gender":             "female",
				"active_medications": []map[string]any{{"name": "Metformin", "prescriber": "Dr. Lee"}},
				"medical_conditions": []map[string]any{{"name": "Asthma"}},
			},
		})
	case r.URL.Path == "/analytics/symptom-intensity":
		reply(map[string]any{"success": true, "data": map[string]any{"dates": []string{}, "symptoms": map[string]any{}}})
	case r.URL.Path == "/analytics/symptom-frequency":
		reply(map[string]any{"success": true, "data": []map[string]any{{"symptom": "headache", "frequency": 2}}})
	case r.URL.Path == "/analytics/symptom-summary":
		b.summaryHits.Add(1)
		reply(map[string]any{"success": true, "summary": map[string]any{"total_symptoms_recorded": 2}})
	case r.URL.Path == "/chat":
		reply(map[string]any{
			"session_id": 9,
			"message":    map[string]any{"role": "assistant", "content": "How long has it hurt?"},
		})
	case strings.HasSuffix(r.URL.Path, "/analyze"):
		reply(map[string]any{"possible_diagnosis": []string{"Tension headache"}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestApp(t *testing.T, storage persist.Store) (*App, *backend) {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.API.BaseURL = srv.URL
	cfg.API.RateRPS = 0
	cfg.Patient.DefaultID = "p-1"
	cfg.Analytics.Debounce = 10 * time.Millisecond

	app := NewWithStorage(cfg, storage, nil, "test")
	return app, b
}

func TestNew(t *testing.T) {
	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"

	app, err := New(cfg, nil, "1.0.0")
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "1.0.0", app.Version)
	assert.NotNil(t, app.Chat)
	assert.NotNil(t, app.Runner)
}

func TestApp_ChatCarriesProfileContextAndSignalsAnalytics(t *testing.T) {
	app, b := newTestApp(t, persist.NewMemory())
	defer app.Close()
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	state := app.Patient.FetchProfile(ctx, app.PatientID(), false)
	require.NotNil(t, state.Profile)

	msg, err := app.Chat.Send(ctx, "I have a headache")
	require.NoError(t, err)
	assert.Equal(t, patient.Context{Medications: []string{"Metformin"}, Conditions: []string{"Asthma"}}, msg.Context)
	assert.Equal(t, []chat.Response{chat.Plain{Text: "How long has it hurt?"}}, msg.Parts)
	assert.Equal(t, int64(9), app.Chat.SessionID())

	require.Eventually(t, func() bool {
		return b.summaryHits.Load() >= 1 && !app.Analytics.State().LastUpdated.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "headache", app.Analytics.State().Frequency[0].Symptom)
}

func TestApp_ProfileSurvivesRestart(t *testing.T) {
	storage := persist.NewMemory()
	first, b := newTestApp(t, storage)
	ctx := context.Background()
	require.NoError(t, first.Start(ctx))
	first.Patient.FetchProfile(ctx, "p-1", false)
	first.Runner.Stop()
	first.Analytics.Close()

	second, _ := newTestApp(t, storage)
	defer second.Close()
	require.NoError(t, second.Start(ctx))

	state := second.Patient.State()
	require.NotNil(t, state.Profile)
	assert.Equal(t, "Jane Doe", state.Profile.Name)
	assert.True(t, state.Fresh)
	assert.Equal(t, int32(1), b.profileHits.Load())
}

func TestApp_Logout(t *testing.T) {
	storage := persist.NewMemory()
	app, _ := newTestApp(t, storage)
	defer app.Close()
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	require.NoError(t, app.Tokens.Save(ctx, "opaque"))
	app.Patient.FetchProfile(ctx, "p-1", false)
	_, err := app.Chat.Send(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, app.Logout(ctx))
	assert.Nil(t, app.Patient.State().Profile)
	assert.Empty(t, app.Chat.Messages())
	assert.Zero(t, app.Chat.SessionID())
	token, err := app.Tokens.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	_, err = storage.Get(ctx, patient.StorageKey)
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestRegisterJobs(t *testing.T) {
	app, b := newTestApp(t, persist.NewMemory())
	defer app.Close()

	require.NoError(t, RegisterJobs(app))
	assert.Equal(t, []string{JobAnalyticsPoll, JobProfileCheck}, app.Runner.JobNames())

	require.NoError(t, app.Runner.RunNow(JobProfileCheck))
	assert.Equal(t, int32(1), b.profileHits.Load())
	require.NoError(t, app.Runner.RunNow(JobProfileCheck))
	assert.Equal(t, int32(1), b.profileHits.Load(), "fresh profile is not refetched")

	require.NoError(t, app.Runner.RunNow(JobAnalyticsPoll))
	assert.Equal(t, int32(1), b.summaryHits.Load())
}

func TestRegisterJobs_WithoutPatient(t *testing.T) {
	app, _ := newTestApp(t, persist.NewMemory())
	defer app.Close()
	app.Config.Patient.DefaultID = ""

	require.NoError(t, RegisterJobs(app))
	assert.Equal(t, []string{JobAnalyticsPoll}, app.Runner.JobNames())
}

func TestApp_ApplyConfig(t *testing.T) {
	app, _ := newTestApp(t, persist.NewMemory())
	defer app.Close()

	updated := *app.Config
	updated.Analytics.AutoRefresh = false
	updated.Analytics.IntensityDays = 90
	app.ApplyConfig(&updated)

	state := app.Analytics.State()
	assert.False(t, state.AutoRefresh)
	assert.Equal(t, 90, state.Window.IntensityDays)
	assert.False(t, app.Analytics.CheckForUpdates(context.Background()))
}

func TestInteractive(t *testing.T) {
	app, _ := newTestApp(t, persist.NewMemory())
	defer app.Close()

	var rendered []chat.Response
	render := func(parts []chat.Response) { rendered = append(rendered, parts...) }

	in := strings.NewReader("hello\nhelp\nanalyze\nnew\nexit\n")
	var out bytes.Buffer
	require.NoError(t, Interactive(context.Background(), app.Chat, in, &out, render))

	require.Len(t, rendered, 2)
	assert.Equal(t, chat.Plain{Text: "How long has it hurt?"}, rendered[0])
	assert.Equal(t, chat.KindDiagnosis, rendered[1].Kind())
	assert.Contains(t, out.String(), "Interactive Commands:")
	assert.Contains(t, out.String(), "New conversation started")
	assert.Empty(t, app.Chat.Messages())
}

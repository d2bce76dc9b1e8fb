package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	JobAnalyticsPoll = "analytics-poll"
	JobProfileCheck  = "profile-check"
)

// RegisterJobs adds the recurring jobs. The profile check is only added when
// a patient id is configured.
func RegisterJobs(app *App) error {
	err := app.Runner.AddJob(JobAnalyticsPoll, app.Config.Analytics.PollSchedule, 0, func(ctx context.Context) error {
		if app.Analytics.CheckForUpdates(ctx) {
			if msg := app.Analytics.State().Error; msg != "" {
				return fmt.Errorf("analytics refresh: %s", msg)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	patientID := app.PatientID()
	if patientID == "" {
		app.Logger.Info("No patient id configured, skipping profile check")
		return nil
	}
	return app.Runner.AddJob(JobProfileCheck, app.Config.Cache.ProfileCheckSchedule, 0, func(ctx context.Context) error {
		state := app.Patient.FetchProfile(ctx, patientID, false)
		if state.Error != "" {
			return fmt.Errorf("profile check: %s", state.Error)
		}
		app.Logger.Debug("Profile checked",
			zap.Bool("fresh", state.Fresh),
			zap.Time("fetched_at", state.FetchedAt),
		)
		return nil
	})
}

// Package cli implements the carecache subcommands on top of a wired App.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gmsas95/carecache/internal/analytics"
	"github.com/gmsas95/carecache/internal/app"
	"github.com/gmsas95/carecache/internal/config"
	apperrors "github.com/gmsas95/carecache/internal/errors"
	"github.com/gmsas95/carecache/internal/patient"
)

var Version = "dev"

// Options controls how commands talk to the user
type Options struct {
	Out    io.Writer
	In     io.Reader
	Styled bool
	Width  int
}

func HandleProfileCommand(ctx context.Context, args []string, application *app.App, opts Options) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(opts.Out)
	id := fs.String("id", application.PatientID(), "Patient id")
	refresh := fs.Bool("refresh", false, "Bypass the cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("no patient id: pass -id or set patient.default_id")
	}

	state := application.Patient.FetchProfile(ctx, *id, *refresh)
	if state.Profile == nil || state.PatientID != *id {
		if state.Error != "" {
			return errors.New(state.Error)
		}
		return errors.New("no profile available")
	}
	printProfile(opts.Out, state, time.Now())
	return nil
}

func printProfile(out io.Writer, state patient.State, now time.Time) {
	p := state.Profile
	fmt.Fprintln(out, titleStyle.Render(p.Name))
	details := []string{string(p.Sex())}
	if age, ok := p.AgeAt(now); ok {
		details = append(details, fmt.Sprintf("%d years", age))
	}
	if p.Contact.Email != "" {
		details = append(details, p.Contact.Email)
	}
	fmt.Fprintln(out, strings.Join(details, " · "))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Medications:")
	if len(p.Medications) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, m := range p.Medications {
		line := "  - " + m.Name
		if m.Prescriber != "" {
			line += " (" + m.Prescriber + ")"
		}
		if m.Status != "" {
			line += " [" + m.Status + "]"
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out, "Conditions:")
	if len(p.Conditions) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, c := range p.Conditions {
		line := "  - " + c.Name
		if c.Status != "" {
			line += " [" + c.Status + "]"
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Cached %s ago (%s)\n", now.Sub(state.FetchedAt).Round(time.Second), freshness(state.Fresh))
	if state.Error != "" {
		fmt.Fprintln(out, errorStyle.Render("Last refresh failed: "+state.Error))
	}
}

func freshness(fresh bool) string {
	if fresh {
		return "fresh"
	}
	return "stale"
}

// HandleContextCommand prints the medication and condition names attached
// to new chat messages, from the cached profile only
func HandleContextCommand(application *app.App, opts Options) error {
	pctx := application.Patient.DerivedContext()
	fmt.Fprintf(opts.Out, "Medications: %s\n", listOrNone(pctx.Medications))
	fmt.Fprintf(opts.Out, "Conditions:  %s\n", listOrNone(pctx.Conditions))
	return nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func HandleAnalyticsCommand(ctx context.Context, args []string, application *app.App, opts Options) error {
	window := application.Analytics.TimeRange()
	fs := flag.NewFlagSet("analytics", flag.ContinueOnError)
	fs.SetOutput(opts.Out)
	days := fs.Int("days", window.IntensityDays, "Intensity window in days")
	months := fs.Int("months", window.FrequencyMonths, "Frequency window in months")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state := application.Analytics.RefreshAll(ctx, analytics.TimeRange{IntensityDays: *days, FrequencyMonths: *months})
	if state.LastUpdated.IsZero() {
		return errors.New(state.Error)
	}
	printAnalytics(opts.Out, state, *days, *months)
	return nil
}

func printAnalytics(out io.Writer, state analytics.State, days, months int) {
	if s := state.Summary; s != nil {
		fmt.Fprintln(out, titleStyle.Render("Summary"))
		fmt.Fprintf(out, "  Symptoms recorded: %d\n", s.TotalRecorded)
		if s.MostFrequentSymptom != "" {
			fmt.Fprintf(out, "  Most frequent:     %s (%d)\n", s.MostFrequentSymptom, s.MostFrequentCount)
		}
		if s.HighestIntensitySymptom != "" {
			fmt.Fprintf(out, "  Most intense:      %s (%.1f)\n", s.HighestIntensitySymptom, s.HighestIntensityValue)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Frequency, last %d months", months)))
	if len(state.Frequency) == 0 {
		fmt.Fprintln(out, "  no symptoms recorded")
	}
	for _, item := range state.Frequency {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(item.Color)).Render("■")
		fmt.Fprintf(out, "  %s %-16s %4d  %5.1f%%\n", swatch, item.Symptom, item.Count, item.Percentage)
	}

	if in := state.Intensity; in != nil && len(in.Symptoms) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Peak intensity, last %d days", days)))
		for _, name := range sortedSeries(in) {
			series := in.Symptoms[name]
			peak := 0.0
			for _, p := range series.Points {
				if p.Intensity > peak {
					peak = p.Intensity
				}
			}
			fmt.Fprintf(out, "  %-16s %s %.1f\n", series.Name, bar(peak, 10, series.Color), peak)
		}
	}

	if state.Error != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, errorStyle.Render(state.Error))
	}
}

func HandleChatCommand(ctx context.Context, args []string, application *app.App, opts Options) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(opts.Out)
	message := fs.String("m", "", "Message to send; omit for interactive mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if id := application.PatientID(); id != "" {
		if state := application.Patient.FetchProfile(ctx, id, false); state.Error != "" {
			fmt.Fprintln(opts.Out, mutedStyle.Render("Profile unavailable: "+state.Error))
		}
	}

	render := NewRenderer(opts.Out, opts.Styled, opts.Width)
	if *message != "" {
		return app.OneShot(ctx, application.Chat, *message, opts.Out, render)
	}
	return app.Interactive(ctx, application.Chat, opts.In, opts.Out, render)
}

func HandleLoginCommand(ctx context.Context, args []string, application *app.App, opts Options) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: carecache login <token>")
	}
	if err := application.Tokens.Save(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	fmt.Fprintf(opts.Out, "Token %s saved\n", maskToken(args[0]))
	return nil
}

func HandleLogoutCommand(ctx context.Context, application *app.App, opts Options) error {
	if err := application.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(opts.Out, "Logged out: cached profile, chat history and token cleared")
	return nil
}

func HandleConfigCommand(args []string, cfg *config.Config, opts Options) error {
	if len(args) == 0 {
		PrintConfigHelp(opts.Out)
		return nil
	}

	switch args[0] {
	case "show", "view":
		return cfg.Dump(opts.Out)
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: carecache config get <key>")
		}
		return printConfigValue(opts.Out, cfg, args[1])
	case "path":
		fmt.Fprintln(opts.Out, cfg.Storage.DataDir)
		return nil
	default:
		PrintConfigHelp(opts.Out)
		return nil
	}
}

func printConfigValue(out io.Writer, cfg *config.Config, key string) error {
	switch key {
	case "api.base_url":
		fmt.Fprintln(out, cfg.API.BaseURL)
	case "api.timeout":
		fmt.Fprintln(out, cfg.API.Timeout)
	case "storage.backend":
		fmt.Fprintln(out, cfg.Storage.Backend)
	case "storage.data_dir":
		fmt.Fprintln(out, cfg.Storage.DataDir)
	case "cache.profile_ttl":
		fmt.Fprintln(out, cfg.Cache.ProfileTTL)
	case "patient.default_id":
		fmt.Fprintln(out, cfg.Patient.DefaultID)
	case "analytics.auto_refresh":
		fmt.Fprintln(out, cfg.Analytics.AutoRefresh)
	case "analytics.intensity_days":
		fmt.Fprintln(out, cfg.Analytics.IntensityDays)
	case "analytics.frequency_months":
		fmt.Fprintln(out, cfg.Analytics.FrequencyMonths)
	default:
		return apperrors.New(apperrors.ErrBadRequest.Code, fmt.Sprintf("unknown key %q", key))
	}
	return nil
}

func HandleStatusCommand(ctx context.Context, application *app.App, opts Options) error {
	cfg := application.Config
	out := opts.Out

	fmt.Fprintln(out, "CareCache Status")
	fmt.Fprintln(out, "================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Version: %s\n", Version)
	fmt.Fprintf(out, "Backend: %s\n", cfg.API.BaseURL)
	fmt.Fprintf(out, "Storage: %s (%s)\n", cfg.Storage.Backend, cfg.Storage.DataDir)
	fmt.Fprintln(out)

	token, err := application.Tokens.Token(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "Token:   error (%v)\n", err)
	case token == "":
		fmt.Fprintln(out, "Token:   none")
	default:
		fmt.Fprintf(out, "Token:   %s\n", maskToken(token))
	}

	state := application.Patient.State()
	if state.Profile == nil {
		fmt.Fprintln(out, "Profile: not cached")
	} else {
		fmt.Fprintf(out, "Profile: %s, fetched %s (%s)\n",
			state.Profile.Name, state.FetchedAt.Format(time.RFC3339), freshness(state.Fresh))
	}

	fmt.Fprintf(out, "Auto refresh: %s\n", enabledLabel(cfg.Analytics.AutoRefresh))
	fmt.Fprintf(out, "Metrics:      %s\n", enabledLabel(cfg.Metrics.Address != ""))
	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func PrintExtendedHelp(out io.Writer) {
	fmt.Fprintln(out, "CareCache - offline-first patient data sync")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: carecache [flags] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  profile [-id ID] [-refresh]     Show the patient profile")
	fmt.Fprintln(out, "  context                         Show the context attached to chat messages")
	fmt.Fprintln(out, "  analytics [-days N] [-months N] Refresh and show symptom analytics")
	fmt.Fprintln(out, "  chat [-m MESSAGE]               Chat with the assistant")
	fmt.Fprintln(out, "  login <token>                   Store an access token")
	fmt.Fprintln(out, "  logout                          Clear profile, chat and token")
	fmt.Fprintln(out, "  daemon                          Keep caches fresh in the background")
	fmt.Fprintln(out, "  status                          Show cache and token status")
	fmt.Fprintln(out, "  config <show|get|path>          Inspect configuration")
	fmt.Fprintln(out, "  version                         Print the version")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  -config PATH   Config file (default <data>/carecache.yaml)")
	fmt.Fprintln(out, "  -data DIR      Data directory")
}

func PrintConfigHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: carecache config <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  show        Print the effective configuration")
	fmt.Fprintln(out, "  get <key>   Print a single value, e.g. api.base_url")
	fmt.Fprintln(out, "  path        Print the data directory")
}

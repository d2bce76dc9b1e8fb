package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gmsas95/carecache/internal/analytics"
	"github.com/gmsas95/carecache/internal/chat"
	apperrors "github.com/gmsas95/carecache/internal/errors"
	"github.com/gmsas95/carecache/internal/patient"
)

// GetProfile fetches the patient's profile from the EHR
func (c *Client) GetProfile(ctx context.Context, patientID string) (*patient.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/patient/profile/"+url.PathEscape(patientID), nil, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		envelope
		Profile *patient.Profile `json:"profile"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Profile == nil {
		return nil, resp.failure("Failed to load patient profile")
	}
	return resp.Profile, nil
}

// GetSymptomIntensity fetches the intensity series for the last days
func (c *Client) GetSymptomIntensity(ctx context.Context, days int) (*analytics.Intensity, error) {
	query := url.Values{"days": {strconv.Itoa(days)}}
	body, err := c.do(ctx, http.MethodGet, "/analytics/symptom-intensity", query, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		envelope
		Data *analytics.Intensity `json:"data"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data == nil {
		return nil, resp.failure("Failed to fetch symptom intensity")
	}
	return resp.Data, nil
}

// GetSymptomFrequency fetches occurrence counts for the last months
func (c *Client) GetSymptomFrequency(ctx context.Context, months int) ([]analytics.FrequencyItem, error) {
	query := url.Values{"months": {strconv.Itoa(months)}}
	body, err := c.do(ctx, http.MethodGet, "/analytics/symptom-frequency", query, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		envelope
		Data []analytics.FrequencyItem `json:"data"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.failure("Failed to fetch symptom frequency")
	}
	if resp.Data == nil {
		resp.Data = []analytics.FrequencyItem{}
	}
	return resp.Data, nil
}

// GetSymptomSummary fetches the headline symptom figures
func (c *Client) GetSymptomSummary(ctx context.Context) (*analytics.Summary, error) {
	body, err := c.do(ctx, http.MethodGet, "/analytics/symptom-summary", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		envelope
		Summary *analytics.Summary `json:"summary"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Summary == nil {
		return nil, resp.failure("Failed to fetch symptom summary")
	}
	return resp.Summary, nil
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID *int64 `json:"session_id"`
}

type chatResponse struct {
	SessionID int64 `json:"session_id"`
	Message   struct {
		Role        string `json:"role"`
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
	} `json:"message"`
	RequiresAnalysis bool   `json:"requires_analysis"`
	AnalysisPrompt   string `json:"analysis_prompt"`
}

// SendChat posts a message. A zero sessionID asks the backend to start a
// new session.
func (c *Client) SendChat(ctx context.Context, text string, sessionID int64) (*chat.Reply, error) {
	req := chatRequest{Message: text}
	if sessionID != 0 {
		req.SessionID = &sessionID
	}
	body, err := c.do(ctx, http.MethodPost, "/chat", nil, req)
	if err != nil {
		return nil, err
	}
	var resp chatResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Message.Content == "" {
		return nil, apperrors.New(apperrors.ErrServer.Code, "empty reply from assistant")
	}
	return &chat.Reply{
		SessionID:        resp.SessionID,
		Parts:            []chat.Response{chat.Plain{Text: resp.Message.Content}},
		RequiresAnalysis: resp.RequiresAnalysis,
		AnalysisPrompt:   resp.AnalysisPrompt,
	}, nil
}

// AnalyzeSession asks for a structured analysis of a session
func (c *Client) AnalyzeSession(ctx context.Context, sessionID int64) (*chat.Analysis, error) {
	path := "/chat/" + strconv.FormatInt(sessionID, 10) + "/analyze"
	body, err := c.do(ctx, http.MethodPost, path, nil, struct{}{})
	if err != nil {
		return nil, err
	}
	parts, reminders, err := chat.DecodeReply(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServer.Code, "invalid analysis from server")
	}
	return &chat.Analysis{Parts: parts, Reminders: reminders}, nil
}

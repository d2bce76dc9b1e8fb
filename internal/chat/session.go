// Package chat keeps the conversation with the assistant: the ordered
// message history, the server session it belongs to and the structured
// response parts of each reply.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gmsas95/carecache/internal/cache"
	apperrors "github.com/gmsas95/carecache/internal/errors"
	"github.com/gmsas95/carecache/internal/metrics"
	"github.com/gmsas95/carecache/internal/patient"
)

const (
	// AnalyzePrompt is the user text recorded for an analysis request
	AnalyzePrompt = "Analyze my symptoms"

	defaultAnalysisPrompt = "Would you like me to analyze your symptoms?"

	msgRateLimited = "Too many requests. Please wait a moment and try again."
	msgUnavailable = "Server is temporarily unavailable. Please try again later."
	msgGeneric     = "Something went wrong. Please try again."
)

var (
	ErrBusy         = apperrors.New("CHAT_001", "a request is already in progress")
	ErrEmptyMessage = apperrors.New("CHAT_002", "message is empty")
	ErrNoSession    = apperrors.New("CHAT_003", "no chat session to analyze")
	ErrCleared      = apperrors.New("CHAT_004", "session was cleared while the request was in flight")
)

// Message is one exchange: the user's text and the assistant's reply parts.
// Context is the patient context captured when the message was sent.
type Message struct {
	ID        string
	UserText  string
	Parts     []Response
	Reminders []ReminderSuggestion
	Context   patient.Context
	Timestamp time.Time
}

// Reply is the backend's answer to a chat message
type Reply struct {
	SessionID        int64
	Parts            []Response
	RequiresAnalysis bool
	AnalysisPrompt   string
}

// Analysis is the backend's structured analysis of a session
type Analysis struct {
	Parts     []Response
	Reminders []ReminderSuggestion
}

// Sender talks to the chat backend. A zero sessionID starts a new session.
type Sender interface {
	SendChat(ctx context.Context, text string, sessionID int64) (*Reply, error)
	AnalyzeSession(ctx context.Context, sessionID int64) (*Analysis, error)
}

// ContextSource supplies the patient context for new messages
type ContextSource interface {
	DerivedContext() patient.Context
}

// Signaler is told whenever a message is appended
type Signaler interface {
	Signal()
}

// Session is the in-memory chat history. At most one request to the backend
// is in flight at a time.
type Session struct {
	mu              sync.RWMutex
	messages        []Message
	sessionID       int64
	loading         bool
	pendingAnalysis string
	// epoch changes on ClearSession so late replies are dropped
	epoch uint64

	sender    Sender
	validator *InputValidator
	contexts  ContextSource
	signaler  Signaler
	clock     cache.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewSession creates an empty session. contexts and signaler may be nil.
func NewSession(sender Sender, contexts ContextSource, signaler Signaler, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		messages:  []Message{},
		sender:    sender,
		validator: NewInputValidator(),
		contexts:  contexts,
		signaler:  signaler,
		clock:     time.Now,
		metrics:   metrics.Default(),
		logger:    logger,
	}
}

func (s *Session) SetClock(clock cache.Clock) {
	s.clock = clock
}

func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// AppendMessage records a message with a fresh id and the current time, then
// signals the analytics store. The parts and context are copied.
func (s *Session) AppendMessage(userText string, parts []Response, ctx patient.Context) Message {
	msg := s.newMessage(userText, parts, nil, ctx)
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.signal()
	return msg
}

// appendInEpoch appends only if the session has not been cleared since the
// request started.
func (s *Session) appendInEpoch(epoch uint64, userText string, parts []Response, reminders []ReminderSuggestion, ctx patient.Context) (Message, error) {
	msg := s.newMessage(userText, parts, reminders, ctx)
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("Dropping reply for cleared session")
		return Message{}, ErrCleared
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.signal()
	return msg, nil
}

func (s *Session) newMessage(userText string, parts []Response, reminders []ReminderSuggestion, ctx patient.Context) Message {
	return Message{
		ID:        newMessageID(),
		UserText:  userText,
		Parts:     append([]Response(nil), parts...),
		Reminders: append([]ReminderSuggestion(nil), reminders...),
		Context:   ctx.Clone(),
		Timestamp: s.clock(),
	}
}

func (s *Session) signal() {
	if s.signaler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Analytics signal panicked", zap.Any("panic", r))
		}
	}()
	s.metrics.RecordSignal("chat", "analytics")
	s.signaler.Signal()
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Send posts text to the backend and appends the exchange. Backend failures
// become an error part on the appended message. An unauthorized response
// appends nothing and is returned.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if err := s.validator.Validate(text); err != nil {
		return Message{}, err
	}
	sessionID, epoch, err := s.begin(false)
	if err != nil {
		return Message{}, err
	}
	defer s.finish()

	pctx := s.currentContext()
	reply, err := s.sender.SendChat(ctx, text, sessionID)
	if err != nil {
		return s.fail(epoch, text, pctx, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return Message{}, ErrCleared
	}
	if s.sessionID == 0 {
		s.sessionID = reply.SessionID
	}
	s.pendingAnalysis = ""
	if reply.RequiresAnalysis {
		s.pendingAnalysis = reply.AnalysisPrompt
		if s.pendingAnalysis == "" {
			s.pendingAnalysis = defaultAnalysisPrompt
		}
	}
	s.mu.Unlock()

	return s.appendInEpoch(epoch, text, reply.Parts, nil, pctx)
}

// Analyze asks the backend to analyze the current session and appends the
// structured result.
func (s *Session) Analyze(ctx context.Context) (Message, error) {
	sessionID, epoch, err := s.begin(true)
	if err != nil {
		return Message{}, err
	}
	defer s.finish()

	pctx := s.currentContext()
	analysis, err := s.sender.AnalyzeSession(ctx, sessionID)
	if err != nil {
		return s.fail(epoch, AnalyzePrompt, pctx, err)
	}
	return s.appendInEpoch(epoch, AnalyzePrompt, analysis.Parts, analysis.Reminders, pctx)
}

func (s *Session) begin(needSession bool) (int64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return 0, 0, ErrBusy
	}
	if needSession && s.sessionID == 0 {
		return 0, 0, ErrNoSession
	}
	s.loading = true
	if needSession {
		s.pendingAnalysis = ""
	}
	return s.sessionID, s.epoch, nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Session) fail(epoch uint64, userText string, pctx patient.Context, err error) (Message, error) {
	if errors.Is(err, apperrors.ErrUnauthorized) {
		s.logger.Info("Chat request unauthorized")
		return Message{}, err
	}
	s.logger.Warn("Chat request failed", zap.Error(err))
	return s.appendInEpoch(epoch, userText, []Response{ErrorReply{Message: userFacingMessage(err)}}, nil, pctx)
}

func userFacingMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, apperrors.ErrServiceState):
		return msgUnavailable
	default:
		return msgGeneric
	}
}

func (s *Session) currentContext() patient.Context {
	if s.contexts == nil {
		return patient.EmptyContext()
	}
	return s.contexts.DerivedContext()
}

// DeclineAnalysis drops the pending analysis offer
func (s *Session) DeclineAnalysis() {
	s.mu.Lock()
	s.pendingAnalysis = ""
	s.mu.Unlock()
}

// ClearSession empties the history and forgets the server session
func (s *Session) ClearSession() {
	s.mu.Lock()
	s.messages = []Message{}
	s.sessionID = 0
	s.pendingAnalysis = ""
	s.epoch++
	s.mu.Unlock()
	s.logger.Debug("Chat session cleared")
}

// Messages returns the history in append order
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) SessionID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// PendingAnalysis returns the assistant's offer to analyze, empty if none
func (s *Session) PendingAnalysis() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingAnalysis
}

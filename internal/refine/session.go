package refine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/schemaforge-labs/schemaforge/internal/validator"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// State is the refinement session lifecycle state.
type State string

// Session states. Processing is entered for the duration of one
// collaborator round trip and always returns to Ready.
const (
	StateIdle       State = "idle"
	StateReady      State = "ready"
	StateProcessing State = "processing"
)

// DefaultProposalTimeout bounds one collaborator round trip.
const DefaultProposalTimeout = 30 * time.Second

// historyWindow is how many trailing messages accompany each proposal
// request as conversational context.
const historyWindow = 5

// Session is one user's refinement conversation over a schema. It holds
// a linear snapshot history with an undo/redo cursor: accepting a new
// snapshot truncates any redo tail before pushing, so redo never
// resurrects an abandoned branch.
type Session struct {
	mu sync.Mutex

	collaborator core.Collaborator
	validator    *validator.Validator
	logger       *slog.Logger
	timeout      time.Duration
	traces       core.TraceSink
	scope        core.Scope

	state    State
	messages []core.Message
	history  []*core.Schema
	cursor   int
}

// NewSession creates an idle session. Initialize must be called before
// messages are accepted. A nil logger discards output.
func NewSession(collab core.Collaborator, v *validator.Validator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		collaborator: collab,
		validator:    v,
		logger:       logger,
		timeout:      DefaultProposalTimeout,
		state:        StateIdle,
		cursor:       -1,
	}
}

// SetProposalTimeout overrides the per-proposal deadline.
func (s *Session) SetProposalTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// BindTraces routes one decision trace per accepted proposal to sink,
// recorded under scope. Unbound sessions keep no audit trail.
func (s *Session) BindTraces(sink core.TraceSink, scope core.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = sink
	s.scope = scope
}

// Initialize seeds the session with a starting schema and moves it to
// Ready. The snapshot becomes history entry zero.
func (s *Session) Initialize(schema *core.Schema) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	snapshot, err := schema.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = []*core.Schema{snapshot}
	s.cursor = 0
	s.messages = nil
	s.state = StateReady
	return nil
}

// SubmitMessage sends one user message through the collaborator and, if
// the proposal validates, accepts the resulting schema. On any failure
// the schema history is left untouched and the failure is surfaced to
// the conversation as an assistant message, so the user can rephrase.
func (s *Session) SubmitMessage(ctx context.Context, text string) (*core.RefineResponse, error) {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("session is %s, not ready", state)
	}
	s.state = StateProcessing
	s.messages = append(s.messages, core.Message{
		Role:      core.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})
	req := &core.RefineRequest{
		Message:       text,
		CurrentSchema: s.history[s.cursor].MustClone(),
		History:       lastN(s.messages, historyWindow),
	}
	timeout := s.timeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.collaborator.Propose(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady

	if err != nil {
		s.failTurn("I couldn't process that request. Please try again.")
		return nil, &core.AIServiceError{Op: "propose", Err: err}
	}

	candidate, err := s.resolveProposal(req.CurrentSchema, resp)
	if err != nil {
		s.logger.Warn("rejected collaborator proposal", "intent", resp.Intent, "error", err)
		s.failTurn(fmt.Sprintf("That change can't be applied: %v", err))
		return resp, err
	}

	if candidate != nil {
		before := s.history[s.cursor]
		s.acceptSnapshot(candidate)
		s.recordTrace(resp, before, candidate)
	}

	s.messages = append(s.messages, core.Message{
		Role:      core.RoleAssistant,
		Content:   resp.ResponseMessage,
		CreatedAt: time.Now().UTC(),
	})
	return resp, nil
}

// resolveProposal turns a collaborator response into a validated schema
// snapshot, or nil for explain-only responses that change nothing.
func (s *Session) resolveProposal(current *core.Schema, resp *core.RefineResponse) (*core.Schema, error) {
	var candidate *core.Schema
	switch {
	case resp.UpdatedSchema != nil:
		candidate = resp.UpdatedSchema.MustClone()
	case len(resp.Changes) > 0:
		applied, err := Apply(current, resp.Changes)
		if err != nil {
			return nil, err
		}
		candidate = applied
	default:
		return nil, nil
	}

	// Every proposal revalidates in full; the collaborator's output is
	// never trusted to be well formed.
	result := s.validator.Validate(candidate)
	if !result.Passed {
		return nil, result.Err()
	}
	return candidate, nil
}

// AcceptSchema pushes an externally validated snapshot, for callers
// that edit the schema outside the collaborator loop.
func (s *Session) AcceptSchema(schema *core.Schema) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	snapshot, err := schema.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return fmt.Errorf("session not initialized")
	}
	s.acceptSnapshot(snapshot)
	return nil
}

// acceptSnapshot truncates the redo tail and pushes. Callers hold mu.
func (s *Session) acceptSnapshot(snapshot *core.Schema) {
	s.history = append(s.history[:s.cursor+1], snapshot)
	s.cursor = len(s.history) - 1
}

// recordTrace appends an audit entry for an accepted proposal carrying
// the collaborator's intent and reasoning. Trace failures are logged,
// never surfaced: the snapshot is already accepted. Callers hold mu.
func (s *Session) recordTrace(resp *core.RefineResponse, before, after *core.Schema) {
	if s.traces == nil {
		return
	}
	trace := &core.DecisionTrace{
		ProjectID:    s.scope.ProjectID,
		UserID:       s.scope.UserID,
		Intent:       string(resp.Intent),
		Action:       resp.ResponseMessage,
		Precedent:    resp.Reasoning,
		Version:      after.Version,
		SchemaBefore: before,
		SchemaAfter:  after,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.traces.AppendTrace(trace); err != nil {
		s.logger.Error("failed to record refinement trace", "scope", s.scope.String(), "error", err)
	}
}

// failTurn records an assistant-side failure message. Callers hold mu.
func (s *Session) failTurn(msg string) {
	s.messages = append(s.messages, core.Message{
		Role:      core.RoleAssistant,
		Content:   msg,
		CreatedAt: time.Now().UTC(),
	})
}

// Undo steps the cursor back one snapshot. Returns false at the oldest
// snapshot; undo never pops history.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor <= 0 {
		return false
	}
	s.cursor--
	return true
}

// Redo steps the cursor forward one snapshot. Returns false at the
// newest snapshot.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= len(s.history)-1 {
		return false
	}
	s.cursor++
	return true
}

// CanUndo reports whether an older snapshot exists.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

// CanRedo reports whether a newer snapshot exists.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= 0 && s.cursor < len(s.history)-1
}

// Current returns a copy of the snapshot under the cursor, or nil for
// an uninitialized session.
func (s *Session) Current() *core.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 {
		return nil
	}
	return s.history[s.cursor].MustClone()
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HistoryLength returns the number of snapshots held.
func (s *Session) HistoryLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func lastN(msgs []core.Message, n int) []core.Message {
	if len(msgs) <= n {
		out := make([]core.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]core.Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

package core

import (
	"context"
	"time"
)

// MessageRole identifies the author of a refinement message.
type MessageRole string

// Message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry of a refinement conversation.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Intent classifies what a collaborator response intends to do. The
// value is recorded in the decision trace alongside the action taken.
type Intent string

// Collaborator intents.
const (
	IntentAddEntity       Intent = "add_entity"
	IntentModifyEntity    Intent = "modify_entity"
	IntentRemoveEntity    Intent = "remove_entity"
	IntentAddRelationship Intent = "add_relationship"
	IntentModifyUI        Intent = "modify_ui"
	IntentExplain         Intent = "explain"
)

// RefineRequest is the payload sent to the external AI collaborator:
// the user message, the current schema, and the last five messages of
// conversational context.
type RefineRequest struct {
	Message       string    `json:"message"`
	CurrentSchema *Schema   `json:"current_schema"`
	History       []Message `json:"last_5_messages"`
}

// RefineResponse is the collaborator's proposal. Either UpdatedSchema is
// set, or Changes carries a changeset to apply to the current schema.
// Reasoning feeds the decision trace.
type RefineResponse struct {
	Intent          Intent   `json:"intent"`
	Reasoning       string   `json:"reasoning"`
	Changes         []Change `json:"changes,omitempty"`
	UpdatedSchema   *Schema  `json:"updated_schema,omitempty"`
	ResponseMessage string   `json:"response_message"`
}

// Collaborator is the boundary to the external AI service. The service
// itself is out of scope; implementations live behind this interface
// and are bounded by the caller's context deadline.
type Collaborator interface {
	Propose(ctx context.Context, req *RefineRequest) (*RefineResponse, error)
}

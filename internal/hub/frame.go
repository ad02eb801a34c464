package hub

import (
	"encoding/json"
	"fmt"
)

// MsgType identifies a control channel message. The set is closed:
// both ends ignore frames with any other type.
type MsgType string

const (
	// Host -> agent
	TypeConnected   MsgType = "connected"
	TypeSuggestions MsgType = "suggestions"

	// Agent -> host
	TypeConversationContext MsgType = "conversation_context"
	TypeSuggestionSelected  MsgType = "suggestion_selected"

	// Either direction
	TypeStatus MsgType = "status"
)

// KnownType reports whether t is part of the wire protocol.
func KnownType(t MsgType) bool {
	switch t {
	case TypeConnected, TypeSuggestions, TypeConversationContext, TypeSuggestionSelected, TypeStatus:
		return true
	}
	return false
}

// Frame is the decoded superset of all message types. Which fields are
// meaningful depends on Type; everything else is left at its zero value.
type Frame struct {
	Type MsgType `json:"type"`

	// connected
	Message string `json:"message,omitempty"`

	// conversation_context
	Context         string `json:"context,omitempty"`
	ConversationRef string `json:"conversation_ref,omitempty"`

	// suggestions
	Suggestions []string `json:"suggestions,omitempty"`
	Loading     bool     `json:"loading,omitempty"`

	// suggestion_selected
	Index    int    `json:"index,omitempty"`
	Text     string `json:"text,omitempty"`
	Inserted bool   `json:"inserted,omitempty"`

	// status
	Status string `json:"status,omitempty"`
}

// ErrUnknownType marks a frame whose type is outside the protocol.
// Receivers log and drop these rather than failing the connection.
type ErrUnknownType struct {
	Type MsgType
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

// DecodeFrame parses a wire message. Malformed JSON and unknown types
// both return errors; callers drop the frame either way.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if !KnownType(f.Type) {
		return nil, &ErrUnknownType{Type: f.Type}
	}
	return &f, nil
}

// Dedicated encode structs keep each message type's wire shape exact:
// selection frames always carry index/inserted even when zero, and no
// frame carries another type's fields.

type connectedFrame struct {
	Type    MsgType `json:"type"`
	Message string  `json:"message"`
}

type suggestionsFrame struct {
	Type        MsgType  `json:"type"`
	Suggestions []string `json:"suggestions"`
	Loading     bool     `json:"loading,omitempty"`
}

type contextFrame struct {
	Type            MsgType `json:"type"`
	Context         string  `json:"context"`
	ConversationRef string  `json:"conversation_ref,omitempty"`
}

type selectedFrame struct {
	Type     MsgType `json:"type"`
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Inserted bool    `json:"inserted"`
}

type statusFrame struct {
	Type   MsgType `json:"type"`
	Status string  `json:"status"`
}

// EncodeConnected builds the greeting the host sends on session start.
func EncodeConnected(message string) []byte {
	data, _ := json.Marshal(connectedFrame{Type: TypeConnected, Message: message})
	return data
}

// EncodeSuggestions builds a host->agent suggestions push. An empty list
// with loading=true tells the overlay to show its loading state.
func EncodeSuggestions(suggestions []string, loading bool) []byte {
	if suggestions == nil {
		suggestions = []string{}
	}
	data, _ := json.Marshal(suggestionsFrame{Type: TypeSuggestions, Suggestions: suggestions, Loading: loading})
	return data
}

// EncodeContext builds an agent->host conversation context report.
func EncodeContext(context, conversationRef string) []byte {
	data, _ := json.Marshal(contextFrame{Type: TypeConversationContext, Context: context, ConversationRef: conversationRef})
	return data
}

// EncodeSelected builds an agent->host selection report.
func EncodeSelected(index int, text string, inserted bool) []byte {
	data, _ := json.Marshal(selectedFrame{Type: TypeSuggestionSelected, Index: index, Text: text, Inserted: inserted})
	return data
}

// EncodeStatus builds a status frame, sent by either side.
func EncodeStatus(status string) []byte {
	data, _ := json.Marshal(statusFrame{Type: TypeStatus, Status: status})
	return data
}

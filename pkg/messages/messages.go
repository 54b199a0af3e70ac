// Package messages defines the JSON wire protocol between clients and
// the gateway.
package messages

import (
	"encoding/json"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/session"
)

const (
	// MessageBufferSize represents the maximum number of pending
	// outbound messages per connection
	MessageBufferSize = 64
)

// Message types
const (
	// client -> server
	MessageTypeClientCreateRoom   = "create_room"
	MessageTypeClientJoinRoom     = "join_room"
	MessageTypeClientSubmitChoice = "submit_choice"
	MessageTypeClientAdvanceRound = "advance_round"
	MessageTypeClientResync       = "resync"

	// server -> client
	MessageTypeServerSessionState = "session_state"
	MessageTypeServerErrorNotice  = "error_notice"
)

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ClientCreateRoom struct {
	PlayerName string `json:"playerName"`
}

type ClientJoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type ClientSubmitChoice struct {
	Choice         types.Decision `json:"choice"`
	DecisionTimeMS int64          `json:"decisionTimeMs"`
}

// ClientResync asks for a fresh snapshot. GameID and PlayerID rebind a
// session after a reconnect; both empty means "resync my current
// binding".
type ClientResync struct {
	GameID   string `json:"gameID,omitempty"`
	PlayerID string `json:"playerID,omitempty"`
}

// ServerSessionState carries a full snapshot and the phase derived for
// the receiving player. Clients replace their entire local view with
// it; there are no incremental updates on the wire.
type ServerSessionState struct {
	Phase      session.Phase     `json:"phase"`
	PlayerID   string            `json:"playerID"`
	Snapshot   *session.Snapshot `json:"snapshot"`
	Situation  *game.Situation   `json:"situation,omitempty"`
	Reflection string            `json:"reflection,omitempty"`
	Final      *FinalSummary     `json:"final,omitempty"`
}

// FinalSummary is attached once the game is finished: archetypes for
// both players and the forfeit outcome, or Split for a score tie.
type FinalSummary struct {
	Archetypes map[string]game.Archetype `json:"archetypes"`
	Split      bool                      `json:"split"`
	PayerID    string                    `json:"payerID,omitempty"`
	Reason     string                    `json:"reason,omitempty"`
}

// ServerErrorNotice surfaces a non-fatal error. Retryable notices are
// user-input problems or transient store failures; the client prompts
// and tries again.
type ServerErrorNotice struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error notice codes
const (
	ErrorCodeNameInvalid      = "name_invalid"
	ErrorCodeRoomNotFound     = "room_not_found"
	ErrorCodeRoomFull         = "room_full"
	ErrorCodeStoreUnavailable = "store_unavailable"
	ErrorCodeBadRequest       = "bad_request"
)

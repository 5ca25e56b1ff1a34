package api

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies an envelope payload
type MessageType string

const (
	TypeOpenSession       MessageType = "open_session"
	TypeReserveWithdraw   MessageType = "reserve_withdraw"
	TypeCommitReservation MessageType = "commit_reservation"
	TypeCancelReservation MessageType = "cancel_reservation"
	TypeDeposit           MessageType = "deposit"
	TypeCloseSession      MessageType = "close_session"

	// TypeResponse is the server reply to any request, correlated by RequestID
	TypeResponse MessageType = "response"
	// TypeSessionDelta is pushed by the server to every subscriber
	TypeSessionDelta MessageType = "session_delta"
)

// AnyRevision disables the optimistic concurrency check
const AnyRevision int64 = -1

// Envelope is one frame on the request/response channel
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"` // генерируется клиентом, возвращается без изменений
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope
func NewEnvelope(typ MessageType, requestID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, RequestID: requestID, Payload: raw}, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ItemIdentity is the wire form of an item key
type ItemIdentity struct {
	PrefabID string `json:"prefab_id"`
	Quality  int    `json:"quality"`
	Variant  int    `json:"variant"`
}

// Vec3 is a world position
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// OpenSessionRequest attaches the peer to a terminal
type OpenSessionRequest struct {
	TerminalID string  `json:"terminal_id"`
	PlayerID   string  `json:"player_id,omitempty"`
	Anchor     Vec3    `json:"anchor"`
	Radius     float64 `json:"radius"`
}

// ReserveWithdrawRequest removes items from containers into a reservation
type ReserveWithdrawRequest struct {
	Item             ItemIdentity `json:"item"`
	TerminalID       string       `json:"terminal_id"`
	OperationID      string       `json:"operation_id"`
	ExpectedRevision int64        `json:"expected_revision"`
	Amount           int          `json:"amount"`
}

// CommitReservationRequest hands reserved items to the player
type CommitReservationRequest struct {
	TerminalID  string `json:"terminal_id"`
	OperationID string `json:"operation_id"`
	Token       string `json:"token"`
}

// CancelReservationRequest returns reserved items; Amount 0 cancels everything
type CancelReservationRequest struct {
	TerminalID  string `json:"terminal_id"`
	OperationID string `json:"operation_id"`
	Token       string `json:"token"`
	Amount      int    `json:"amount,omitempty"`
}

// DepositRequest moves items from the player's bag into containers
type DepositRequest struct {
	Item             ItemIdentity `json:"item"`
	TerminalID       string       `json:"terminal_id"`
	OperationID      string       `json:"operation_id"`
	ExpectedRevision int64        `json:"expected_revision"`
	Amount           int          `json:"amount"`
}

// CloseSessionRequest detaches the peer (fire-and-forget)
type CloseSessionRequest struct {
	TerminalID string `json:"terminal_id"`
}

// ItemTotal is one aggregated line of a snapshot
type ItemTotal struct {
	Item        ItemIdentity `json:"item"`
	DisplayName string       `json:"display_name"`
	Amount      int          `json:"amount"`
	SourceCount int          `json:"source_count"`
	StackLimit  int          `json:"stack_limit"`
}

// Snapshot is the authoritative view of one terminal at a revision
type Snapshot struct {
	SessionID          string      `json:"session_id"`
	TerminalID         string      `json:"terminal_id"`
	Items              []ItemTotal `json:"items"`
	Revision           int64       `json:"revision"`
	SlotsUsedVirtual   int         `json:"slots_used_virtual"`
	SlotsTotalPhysical int         `json:"slots_total_physical"`
	ChestCount         int         `json:"chest_count"`
}

// SessionResponse is the reply to every request
type SessionResponse struct {
	Snapshot        *Snapshot `json:"snapshot,omitempty"`
	Reason          Reason    `json:"reason,omitempty"`
	Token           string    `json:"token,omitempty"`
	Revision        int64     `json:"revision"`
	ReservedAmount  int       `json:"reserved_amount,omitempty"`
	CommittedAmount int       `json:"committed_amount,omitempty"`
	RestoredAmount  int       `json:"restored_amount,omitempty"`
	DroppedAmount   int       `json:"dropped_amount,omitempty"`
	StoredAmount    int       `json:"stored_amount,omitempty"`
	ReturnedAmount  int       `json:"returned_amount,omitempty"`
	Success         bool      `json:"success"`
}

// SessionDelta is pushed to subscribers after a state-affecting mutation
type SessionDelta struct {
	Snapshot   *Snapshot `json:"snapshot"`
	TerminalID string    `json:"terminal_id"`
	Reason     Reason    `json:"reason,omitempty"`
	Revision   int64     `json:"revision"`
	Success    bool      `json:"success"`
}

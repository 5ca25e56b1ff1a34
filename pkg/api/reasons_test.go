package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReason_Category(t *testing.T) {
	tests := []struct {
		reason Reason
		want   Category
	}{
		{reason: "", want: CategoryNone},
		{reason: ReasonInvalidTerminal, want: CategoryValidation},
		{reason: ReasonInvalidAmount, want: CategoryValidation},
		{reason: ReasonIdentityMismatch, want: CategoryIdentity},
		{reason: ReasonIdentityUnresolved, want: CategoryIdentity},
		{reason: ReasonConflict, want: CategoryConflict},
		{reason: ReasonReservationNotFound, want: CategoryNotFound},
		{reason: ReasonSessionNotFound, want: CategoryNotFound},
		{reason: ReasonInsufficientStock, want: CategoryCapacity},
		{reason: ReasonNoStorageSpace, want: CategoryCapacity},
		{reason: ReasonOwnerMismatch, want: CategoryOwnership},
		{reason: "Weird", want: CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.Category())
		})
	}
}

func TestEnvelope_Decode(t *testing.T) {
	env, err := NewEnvelope(TypeReserveWithdraw, "req-1", ReserveWithdrawRequest{
		TerminalID:       "t1",
		OperationID:      "op-1",
		ExpectedRevision: AnyRevision,
		Item:             ItemIdentity{PrefabID: "Wood", Quality: 1},
		Amount:           5,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", env.RequestID)

	var req ReserveWithdrawRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, int64(-1), req.ExpectedRevision)
	assert.Equal(t, 5, req.Amount)

	assert.Error(t, Envelope{Type: TypeDeposit}.Decode(&req))
	assert.Error(t, Envelope{Type: TypeDeposit, Payload: []byte("{")}.Decode(&req))
}

package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/iudanet/gophstorage/internal/server/terminal"
	"github.com/iudanet/gophstorage/pkg/api"
)

//go:embed schema/envelope.schema.json
var envelopeSchema string

const envelopeSchemaURL = "https://gophstorage/schema/envelope.schema.json"

// Authority is the terminal authority as seen by the transport
type Authority interface {
	OpenSession(ctx context.Context, req terminal.OpenRequest) (*terminal.Result, error)
	ReserveWithdraw(ctx context.Context, req terminal.ReserveRequest) (*terminal.Result, error)
	CommitReservation(ctx context.Context, req terminal.CommitRequest) (*terminal.Result, error)
	CancelReservation(ctx context.Context, req terminal.CancelRequest) (*terminal.Result, error)
	Deposit(ctx context.Context, req terminal.DepositRequest) (*terminal.Result, error)
	CloseSession(ctx context.Context, peer, terminalID string) error
}

// Dispatcher decodes client envelopes and routes them to the authority
type Dispatcher struct {
	authority Authority
	schema    *jsonschema.Schema
	logger    *slog.Logger
}

// NewDispatcher создает диспетчер и компилирует схему конверта
func NewDispatcher(authority Authority, logger *slog.Logger) (*Dispatcher, error) {
	schema, err := jsonschema.CompileString(envelopeSchemaURL, envelopeSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return &Dispatcher{
		authority: authority,
		schema:    schema,
		logger:    logger,
	}, nil
}

// Dispatch handles one inbound frame from peer and returns the reply, or nil
// when the message expects none.
func (d *Dispatcher) Dispatch(ctx context.Context, peer string, raw []byte) *api.Envelope {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		d.logger.WarnContext(ctx, "Malformed frame", "peer", peer, slog.Any("error", err))
		return nil
	}

	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.WarnContext(ctx, "Malformed envelope", "peer", peer, slog.Any("error", err))
		return nil
	}

	if err := d.schema.Validate(doc); err != nil {
		d.logger.WarnContext(ctx, "Envelope rejected by schema",
			"peer", peer,
			"type", env.Type,
			slog.Any("error", err))
		if env.RequestID == "" || env.Type == api.TypeCloseSession {
			return nil
		}
		return d.reply(ctx, env.RequestID, &terminal.Result{Reason: api.ReasonInvalidRequest})
	}

	res, err := d.route(ctx, peer, env)
	if err != nil {
		d.logger.ErrorContext(ctx, "Operation failed",
			"peer", peer,
			"type", env.Type,
			slog.Any("error", err))
		if env.Type == api.TypeCloseSession {
			return nil
		}
		res = &terminal.Result{Reason: api.ReasonInternal}
	}
	if res == nil {
		return nil
	}
	return d.reply(ctx, env.RequestID, res)
}

func (d *Dispatcher) route(ctx context.Context, peer string, env api.Envelope) (*terminal.Result, error) {
	switch env.Type {
	case api.TypeOpenSession:
		var req api.OpenSessionRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return d.authority.OpenSession(ctx, terminal.OpenRequest{
			Peer:       peer,
			TerminalID: req.TerminalID,
			PlayerID:   req.PlayerID,
			Anchor:     terminal.Vec3FromAPI(req.Anchor),
			Radius:     req.Radius,
		})

	case api.TypeReserveWithdraw:
		var req api.ReserveWithdrawRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return d.authority.ReserveWithdraw(ctx, terminal.ReserveRequest{
			Peer:             peer,
			TerminalID:       req.TerminalID,
			OperationID:      req.OperationID,
			Identity:         terminal.IdentityFromAPI(req.Item),
			ExpectedRevision: req.ExpectedRevision,
			Amount:           req.Amount,
		})

	case api.TypeCommitReservation:
		var req api.CommitReservationRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return d.authority.CommitReservation(ctx, terminal.CommitRequest{
			Peer:        peer,
			TerminalID:  req.TerminalID,
			OperationID: req.OperationID,
			Token:       req.Token,
		})

	case api.TypeCancelReservation:
		var req api.CancelReservationRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return d.authority.CancelReservation(ctx, terminal.CancelRequest{
			Peer:        peer,
			TerminalID:  req.TerminalID,
			OperationID: req.OperationID,
			Token:       req.Token,
			Amount:      req.Amount,
		})

	case api.TypeDeposit:
		var req api.DepositRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return d.authority.Deposit(ctx, terminal.DepositRequest{
			Peer:             peer,
			TerminalID:       req.TerminalID,
			OperationID:      req.OperationID,
			Identity:         terminal.IdentityFromAPI(req.Item),
			ExpectedRevision: req.ExpectedRevision,
			Amount:           req.Amount,
		})

	case api.TypeCloseSession:
		var req api.CloseSessionRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		// ответ на close_session не отправляется
		return nil, d.authority.CloseSession(ctx, peer, req.TerminalID)

	default:
		return nil, fmt.Errorf("unsupported message type %q", env.Type)
	}
}

func (d *Dispatcher) reply(ctx context.Context, requestID string, res *terminal.Result) *api.Envelope {
	env, err := api.NewEnvelope(api.TypeResponse, requestID, res.ToAPI())
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to encode response", slog.Any("error", err))
		return nil
	}
	return &env
}

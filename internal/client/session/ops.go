package session

import (
	"log/slog"
	"sort"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/pkg/api"
)

type opKind int

const (
	opOpen opKind = iota
	opReserve
	opCommit
	opCancel
	opDeposit
)

func (k opKind) String() string {
	switch k {
	case opOpen:
		return "open_session"
	case opReserve:
		return "reserve_withdraw"
	case opCommit:
		return "commit_reservation"
	case opCancel:
		return "cancel_reservation"
	case opDeposit:
		return "deposit"
	default:
		return "unknown"
	}
}

// pendingOp is a request awaiting its response. Retries reuse operationID
// so the authority can recognise replays.
type pendingOp struct {
	identity    models.ItemIdentity
	requestID   string
	operationID string
	token       string
	revision    int64
	amount      int
	attempts    int
	kind        opKind
}

// reservation is a confirmed, not yet committed withdrawal owned by this client
type reservation struct {
	identity       models.ItemIdentity
	token          string
	amount         int
	cancelling     int
	commitInFlight bool
}

func (r *reservation) cancellable() int {
	if r.commitInFlight {
		return 0
	}
	return r.amount - r.cancelling
}

func (s *Service) openInFlight() bool {
	for _, op := range s.pending {
		if op.kind == opOpen {
			return true
		}
	}
	return false
}

func (s *Service) reserveInFlight(id models.ItemIdentity) bool {
	for _, op := range s.pending {
		if op.kind == opReserve && op.identity == id {
			return true
		}
	}
	return false
}

func (s *Service) sendOpen() {
	s.lastOpenAt = s.now()
	s.send(&pendingOp{kind: opOpen})
}

// requestSnapshot pulls a fresh snapshot unless one is already on the way
func (s *Service) requestSnapshot() {
	if s.state == StateInactive || s.openInFlight() {
		return
	}
	s.sendOpen()
}

func (s *Service) sendReserve(id models.ItemIdentity, amount int) {
	s.send(&pendingOp{
		kind:        opReserve,
		operationID: s.newID(),
		identity:    id,
		amount:      amount,
		revision:    s.revision,
	})
}

func (s *Service) sendDeposit(id models.ItemIdentity, amount int) {
	s.send(&pendingOp{
		kind:        opDeposit,
		operationID: s.newID(),
		identity:    id,
		amount:      amount,
		revision:    s.revision,
	})
}

func (s *Service) sendCommit(r *reservation) {
	r.commitInFlight = true
	s.send(&pendingOp{
		kind:        opCommit,
		operationID: s.newID(),
		identity:    r.identity,
		token:       r.token,
		amount:      r.amount,
	})
}

func (s *Service) sendCancel(r *reservation, amount int) {
	r.cancelling += amount
	s.send(&pendingOp{
		kind:        opCancel,
		operationID: s.newID(),
		identity:    r.identity,
		token:       r.token,
		amount:      amount,
	})
}

// send registers op under a fresh request id and writes it. A transport
// failure is handled like an internal error response.
func (s *Service) send(op *pendingOp) {
	op.requestID = s.newID()
	typ, payload := s.payload(op)

	env, err := api.NewEnvelope(typ, op.requestID, payload)
	if err == nil {
		s.pending[op.requestID] = op
		err = s.transport.Send(env)
		if err != nil {
			delete(s.pending, op.requestID)
		}
	}
	if err != nil {
		s.logger.Warn("Failed to send request",
			"type", typ,
			"terminal", s.params.TerminalID,
			slog.Any("error", err))
		s.handleResponse(op, api.SessionResponse{Reason: api.ReasonInternal, Revision: s.revision})
		return
	}

	s.logger.Debug("Request sent",
		"type", typ,
		"request_id", op.requestID,
		"operation_id", op.operationID,
		"item", op.identity.String(),
		"amount", op.amount,
		"expected_revision", op.revision)
}

func (s *Service) payload(op *pendingOp) (api.MessageType, any) {
	tid := s.params.TerminalID
	switch op.kind {
	case opReserve:
		return api.TypeReserveWithdraw, api.ReserveWithdrawRequest{
			TerminalID:       tid,
			OperationID:      op.operationID,
			Item:             identityToAPI(op.identity),
			ExpectedRevision: op.revision,
			Amount:           op.amount,
		}
	case opDeposit:
		return api.TypeDeposit, api.DepositRequest{
			TerminalID:       tid,
			OperationID:      op.operationID,
			Item:             identityToAPI(op.identity),
			ExpectedRevision: op.revision,
			Amount:           op.amount,
		}
	case opCommit:
		return api.TypeCommitReservation, api.CommitReservationRequest{
			TerminalID:  tid,
			OperationID: op.operationID,
			Token:       op.token,
		}
	case opCancel:
		return api.TypeCancelReservation, api.CancelReservationRequest{
			TerminalID:  tid,
			OperationID: op.operationID,
			Token:       op.token,
			Amount:      op.amount,
		}
	default:
		p := s.params
		return api.TypeOpenSession, api.OpenSessionRequest{
			TerminalID: tid,
			PlayerID:   p.PlayerID,
			Anchor:     api.Vec3{X: p.Anchor.X, Y: p.Anchor.Y, Z: p.Anchor.Z},
			Radius:     p.Radius,
		}
	}
}

// commitReady commits every confirmed reservation once, never during a drag
func (s *Service) commitReady() {
	if s.dragging || s.state != StateActive {
		return
	}
	for _, r := range s.sortedReservations() {
		if r.commitInFlight || r.cancelling > 0 {
			continue
		}
		s.sendCommit(r)
	}
}

func (s *Service) sortedReservations() []*reservation {
	out := make([]*reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].token < out[j].token })
	return out
}

// Handle consumes one frame from the authority
func (s *Service) Handle(env api.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateInactive {
		return
	}

	switch env.Type {
	case api.TypeSessionDelta:
		var d api.SessionDelta
		if err := env.Decode(&d); err != nil {
			s.logger.Warn("Bad session delta", slog.Any("error", err))
			return
		}
		s.absorb(d.Snapshot, false)

	case api.TypeResponse:
		op, ok := s.pending[env.RequestID]
		if !ok {
			s.logger.Debug("Response for unknown request", "request_id", env.RequestID)
			return
		}
		delete(s.pending, env.RequestID)

		var resp api.SessionResponse
		if err := env.Decode(&resp); err != nil {
			s.logger.Warn("Bad response", "request_id", env.RequestID, slog.Any("error", err))
			resp = api.SessionResponse{Reason: api.ReasonInternal, Revision: s.revision}
		}
		s.handleResponse(op, resp)

	default:
		s.logger.Debug("Unexpected frame", "type", env.Type)
	}
}

// absorb applies snap unless it belongs to another session or is older than
// the applied revision. Only a successful open may switch the session.
func (s *Service) absorb(snap *api.Snapshot, fromOpen bool) bool {
	if snap == nil || snap.TerminalID != s.params.TerminalID {
		return false
	}

	if snap.SessionID != s.sessionID {
		if !fromOpen {
			s.logger.Debug("Snapshot from another session discarded",
				"session", snap.SessionID,
				"current", s.sessionID)
			return false
		}
		if s.sessionID != "" {
			// терминал пересоздан: старые резервации уже восстановлены сервером
			s.forgetReservations()
		}
		s.sessionID = snap.SessionID
		s.revision = 0
	}

	if snap.Revision < s.revision {
		s.logger.Debug("Stale snapshot discarded", "revision", snap.Revision, "applied", s.revision)
		return false
	}

	s.revision = snap.Revision
	s.totals = snap.Items
	s.slotsUsed = snap.SlotsUsedVirtual
	s.slotsTotal = snap.SlotsTotalPhysical
	s.chests = snap.ChestCount
	s.hasSnapshot = true
	s.project(false)
	return true
}

// forgetReservations drops reservations of a replaced session. One with a
// commit in flight stays until the commit response settles it.
func (s *Service) forgetReservations() {
	for token, r := range s.reservations {
		if r.commitInFlight {
			continue
		}
		s.bag.Remove(r.identity, r.amount-r.cancelling)
		delete(s.reservations, token)
	}
}

// project rebuilds the view when the projection hash changed. While a drag
// is running or edits are deferred the rebuild waits, otherwise unissued
// local edits would be overwritten.
func (s *Service) project(force bool) {
	if force {
		s.projectedValid = false
	}
	if s.dragging || len(s.deferred) > 0 {
		s.projectDirty = true
		return
	}
	s.projectDirty = false

	h := projectionHash(s.totals, s.filter, s.slotsUsed, s.slotsTotal)
	if s.projectedValid && h == s.projected {
		return
	}

	s.view = buildView(s.totals, s.filter, s.cfg.Columns, s.slotsUsed < s.slotsTotal)
	s.displayed = s.view.Totals()
	s.projected = h
	s.projectedValid = true
}

func (s *Service) handleResponse(op *pendingOp, resp api.SessionResponse) {
	s.absorb(resp.Snapshot, op.kind == opOpen && resp.Success)

	if !resp.Success {
		s.logger.Warn("Operation rejected",
			"type", op.kind.String(),
			"terminal", s.params.TerminalID,
			"operation_id", op.operationID,
			"reason", resp.Reason,
			"revision", resp.Revision)
		if resp.Reason.Category() == api.CategoryIdentity {
			s.rollback(op)
			s.close(ErrIdentityRefused)
			return
		}
	}

	switch op.kind {
	case opOpen:
		s.onOpen(resp)
	case opReserve:
		s.onReserve(op, resp)
	case opCommit:
		s.onCommit(op, resp)
	case opCancel:
		s.onCancel(op, resp)
	case opDeposit:
		s.onDeposit(op, resp)
	}

	s.resumeDeferred()
}

func (s *Service) onOpen(resp api.SessionResponse) {
	if resp.Success {
		if s.state == StateOpening {
			s.logger.Info("Terminal session active",
				"terminal", s.params.TerminalID,
				"session", s.sessionID,
				"revision", s.revision)
		}
		s.state = StateActive
		s.openFailures = 0
		return
	}

	if s.state == StateOpening {
		s.openFailures++
		s.nextOpenAt = s.now().Add(s.backoff(s.openFailures))
	}
}

func (s *Service) onReserve(op *pendingOp, resp api.SessionResponse) {
	if resp.Success {
		if _, dup := s.reservations[resp.Token]; dup {
			return
		}
		reserved := resp.ReservedAmount
		if reserved < op.amount {
			s.bag.Remove(op.identity, op.amount-reserved)
			s.project(true)
		}
		if reserved > 0 && resp.Token != "" {
			s.reservations[resp.Token] = &reservation{
				token:    resp.Token,
				identity: op.identity,
				amount:   reserved,
			}
			s.commitReady()
		}
		return
	}

	if s.retryConflict(op, resp) {
		return
	}
	s.rollback(op)
	if resp.Reason.Category() == api.CategoryNotFound {
		s.requestSnapshot()
	}
}

func (s *Service) onDeposit(op *pendingOp, resp api.SessionResponse) {
	if resp.Success {
		s.bag.Add(op.identity, resp.ReturnedAmount)
		if resp.ReturnedAmount > 0 {
			s.project(true)
		}
		return
	}

	if s.retryConflict(op, resp) {
		return
	}
	s.rollback(op)
	if resp.Reason.Category() == api.CategoryNotFound {
		s.requestSnapshot()
	}
}

func (s *Service) onCommit(op *pendingOp, resp api.SessionResponse) {
	r, ok := s.reservations[op.token]
	if !ok {
		return
	}
	if resp.Success {
		delete(s.reservations, op.token)
		return
	}

	switch resp.Reason.Category() {
	case api.CategoryNotFound, api.CategoryOwnership:
		// резервация истекла или чужая: предметы вернулись в сундуки
		delete(s.reservations, op.token)
		s.bag.Remove(r.identity, r.amount)
		s.project(true)
		if resp.Reason.Category() == api.CategoryNotFound {
			s.requestSnapshot()
		}
	default:
		// повторим на следующем тике
		r.commitInFlight = false
	}
}

func (s *Service) onCancel(op *pendingOp, resp api.SessionResponse) {
	r, ok := s.reservations[op.token]
	if !ok {
		return
	}
	r.cancelling -= op.amount

	if resp.Success {
		r.amount -= op.amount
		if r.amount <= 0 {
			delete(s.reservations, op.token)
		}
		s.commitReady()
		return
	}

	switch resp.Reason.Category() {
	case api.CategoryNotFound, api.CategoryOwnership:
		// остаток резервации уже вернулся в сундуки сам
		delete(s.reservations, op.token)
		s.bag.Remove(r.identity, r.amount-op.amount-r.cancelling)
		s.project(true)
		if resp.Reason.Category() == api.CategoryNotFound {
			s.requestSnapshot()
		}
	default:
		s.rollback(op)
		s.commitReady()
	}
}

// retryConflict resends op with the fresh revision under the same operation id
func (s *Service) retryConflict(op *pendingOp, resp api.SessionResponse) bool {
	if resp.Reason != api.ReasonConflict || op.attempts >= s.cfg.ConflictRetries {
		return false
	}
	op.attempts++
	op.revision = max(resp.Revision, s.revision)
	s.logger.Debug("Retrying after conflict",
		"type", op.kind.String(),
		"operation_id", op.operationID,
		"attempt", op.attempts,
		"revision", op.revision)
	s.send(op)
	return true
}

// rollback undoes the optimistic bag change of a failed op
func (s *Service) rollback(op *pendingOp) {
	switch op.kind {
	case opReserve:
		s.bag.Remove(op.identity, op.amount)
	case opDeposit, opCancel:
		s.bag.Add(op.identity, op.amount)
	default:
		return
	}
	s.project(true)
}

// resumeDeferred issues edits that waited for an in-flight reserve
func (s *Service) resumeDeferred() {
	if s.state != StateActive || s.detecting {
		return
	}
	if len(s.deferred) > 0 {
		for id := range s.deferred {
			if s.reserveInFlight(id) {
				return
			}
		}
		s.detect()
	}
	if s.projectDirty {
		s.project(false)
	}
}

package api

// Reason объясняет, почему операция не выполнена
type Reason string

const (
	ReasonInvalidTerminal     Reason = "InvalidTerminal"
	ReasonInvalidAmount       Reason = "InvalidAmount"
	ReasonInvalidRequest      Reason = "InvalidRequest"
	ReasonIdentityMismatch    Reason = "IdentityMismatch"
	ReasonIdentityUnresolved  Reason = "IdentityUnresolved"
	ReasonConflict            Reason = "Conflict"
	ReasonSessionNotFound     Reason = "SessionNotFound"
	ReasonReservationNotFound Reason = "ReservationNotFound"
	ReasonPlayerNotFound      Reason = "PlayerNotFound"
	ReasonInsufficientStock   Reason = "InsufficientStock"
	ReasonNoMatchingItem      Reason = "NoMatchingItem"
	ReasonNoStorageSpace      Reason = "NoStorageSpace"
	ReasonOwnerMismatch       Reason = "OwnerMismatch"
	ReasonInternal            Reason = "Internal"
)

// Category groups reasons by how a client reacts to them
type Category string

const (
	CategoryNone       Category = ""
	CategoryValidation Category = "validation"
	CategoryIdentity   Category = "identity"
	CategoryConflict   Category = "conflict"
	CategoryNotFound   Category = "not_found"
	CategoryCapacity   Category = "capacity"
	CategoryOwnership  Category = "ownership"
	CategoryInternal   Category = "internal"
)

// Category returns the error class of the reason
func (r Reason) Category() Category {
	switch r {
	case "":
		return CategoryNone
	case ReasonInvalidTerminal, ReasonInvalidAmount, ReasonInvalidRequest:
		return CategoryValidation
	case ReasonIdentityMismatch, ReasonIdentityUnresolved:
		return CategoryIdentity
	case ReasonConflict:
		return CategoryConflict
	case ReasonSessionNotFound, ReasonReservationNotFound, ReasonPlayerNotFound:
		return CategoryNotFound
	case ReasonInsufficientStock, ReasonNoMatchingItem, ReasonNoStorageSpace:
		return CategoryCapacity
	case ReasonOwnerMismatch:
		return CategoryOwnership
	default:
		return CategoryInternal
	}
}

package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Apply wraps exactly one of these.
var (
	ErrValidation  = errors.New("validation error")
	ErrState       = errors.New("state error")
	ErrConsistency = errors.New("consistency error")
	ErrExternal    = errors.New("external error")
)

var (
	ErrInvalidEntryFee    = fmt.Errorf("%w: entry fee must be positive", ErrValidation)
	ErrInvalidCapacity    = fmt.Errorf("%w: max players must be positive", ErrValidation)
	ErrInvalidChambers    = fmt.Errorf("%w: bullets must be between 1 and the chamber count", ErrValidation)
	ErrUnsupportedCommand = fmt.Errorf("%w: unsupported command", ErrValidation)
	ErrMissingAccount     = fmt.Errorf("%w: account id required", ErrValidation)

	ErrSessionNotFound      = fmt.Errorf("%w: session not found", ErrState)
	ErrSessionAlreadyActive = fmt.Errorf("%w: room already has an active session", ErrState)
	ErrNoJoinableSession    = fmt.Errorf("%w: no joinable session in room", ErrState)
	ErrAlreadyJoined        = fmt.Errorf("%w: already joined", ErrState)
	ErrSessionFull          = fmt.Errorf("%w: session full", ErrState)
	ErrSessionNotWaiting    = fmt.Errorf("%w: session not waiting", ErrState)
	ErrSessionNotRunning    = fmt.Errorf("%w: session not running", ErrState)
	ErrSessionNotActive     = fmt.Errorf("%w: session already concluded", ErrState)
	ErrNotEnoughPlayers     = fmt.Errorf("%w: not enough players", ErrState)
	ErrNotYourTurn          = fmt.Errorf("%w: not your turn", ErrState)
	ErrNotHost              = fmt.Errorf("%w: only the host can do that", ErrState)

	ErrPlayerEliminated = fmt.Errorf("%w: acting player already eliminated", ErrConsistency)
	ErrMissingRound     = fmt.Errorf("%w: running session has no round state", ErrConsistency)
	ErrMultipleActive   = fmt.Errorf("%w: more than one active session in room", ErrConsistency)
	ErrChamberExhausted = fmt.Errorf("%w: chamber cursor exhausted", ErrConsistency)
	ErrNoPendingPayout  = fmt.Errorf("%w: no pending payout", ErrConsistency)
	ErrInvalidPayout    = fmt.Errorf("%w: payout does not match session", ErrConsistency)
	ErrNoAlivePlayers   = fmt.Errorf("%w: no alive players", ErrConsistency)

	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrExternal)
	ErrSettlementPending = fmt.Errorf("%w: payout pending", ErrExternal)
)

// ErrorKind is the coarse class of a failure, used by transports to pick a
// response code.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindState       ErrorKind = "state"
	KindConsistency ErrorKind = "consistency"
	KindExternal    ErrorKind = "external"
	KindUnknown     ErrorKind = "unknown"
)

func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrExternal):
		return KindExternal
	default:
		return KindUnknown
	}
}

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidEntryFee, "invalid_entry_fee"},
	{ErrInvalidCapacity, "invalid_capacity"},
	{ErrInvalidChambers, "invalid_chambers"},
	{ErrUnsupportedCommand, "unsupported_command"},
	{ErrMissingAccount, "missing_account"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionAlreadyActive, "session_already_active"},
	{ErrNoJoinableSession, "no_joinable_session"},
	{ErrAlreadyJoined, "already_joined"},
	{ErrSessionFull, "session_full"},
	{ErrSessionNotWaiting, "session_not_waiting"},
	{ErrSessionNotRunning, "session_not_running"},
	{ErrSessionNotActive, "session_not_active"},
	{ErrNotEnoughPlayers, "not_enough_players"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrNotHost, "not_host"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrSettlementPending, "settlement_pending"},
}

// Code returns a stable machine-readable reason for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return string(Kind(err))
}

package feed

import "errors"

// Sentinel errors for the consensus domain. Services wrap these with %w so
// callers can classify failures with errors.Is; the whole call's state
// changes are discarded when one is returned.
var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrInsufficientStake   = errors.New("insufficient stake")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidState        = errors.New("operation not valid in current state")
	ErrRateLimited         = errors.New("rate limited")
	ErrExpelled            = errors.New("feeder is expelled")
	ErrDoubleVote          = errors.New("feeder already voted in this round")
	ErrFalseAccusation     = errors.New("accused voted with the round outcome")
	ErrAlreadyDisputed     = errors.New("vote already disputed")
	ErrNoPendingRequest    = errors.New("no pending admission request")
	ErrTooSoon             = errors.New("waiting period has not elapsed")
	ErrLocked              = errors.New("stake locked by activity cooldown")
	ErrTransferFailure     = errors.New("token transfer not confirmed")
	ErrPaused              = errors.New("system is paused")
	ErrNotFound            = errors.New("not found")
)

package core

import "errors"

// Rejection conditions. None are retryable: the caller must fix the
// request and resubmit. Rejected operations perform zero writes.
var (
	// ErrPositionNotFound: referenced position absent (or fully drained
	// and deleted).
	ErrPositionNotFound = errors.New("position does not exist")

	// ErrUnauthorizedCaller: caller is not the owner on an owner-gated
	// operation.
	ErrUnauthorizedCaller = errors.New("caller is not the position owner")

	// ErrInsufficientCollateral: collateral below the minimum position
	// value, or a withdrawal exceeds the position's actual collateral.
	ErrInsufficientCollateral = errors.New("insufficient collateral")

	// ErrLTVOutOfBounds: the operation would leave the position at or
	// above the 90% loan-to-value ceiling.
	ErrLTVOutOfBounds = errors.New("position LTV out of bounds")

	// ErrLTVInBounds: liquidation attempted on a healthy position.
	ErrLTVInBounds = errors.New("position LTV within bounds")

	// ErrTCROutOfBounds: the operation would leave (or already finds)
	// system collateralization at or below the 110% floor.
	ErrTCROutOfBounds = errors.New("system TCR out of bounds")

	// ErrInsufficientBalance: caller lacks the stablecoin or collateral
	// the operation pulls.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNothingStaked: unstake or claim without an open stake.
	ErrNothingStaked = errors.New("nothing staked")

	// ErrZeroAmount: amount-bearing operation with a non-positive amount.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrNoPrice: no oracle price received yet for the collateral asset.
	ErrNoPrice = errors.New("no collateral price available")

	// ErrUnknownAsset: asset symbol not recognized, or not allowed to
	// cross the custody boundary.
	ErrUnknownAsset = errors.New("unknown or disallowed asset")
)

// Ordering failures. Unlike rejections these ARE retryable: a gap means
// an earlier operation has not arrived yet, so redelivery can succeed
// once the stream catches up.
var (
	ErrSequenceGap = errors.New("sequence gap")
	ErrOutOfOrder  = errors.New("out-of-order event")
)

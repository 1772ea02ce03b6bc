package backtest

import "errors"

// Errors returned by the rebalancing engine. Callers should match them with
// errors.Is since most call sites wrap them with context.
var (
	// ErrNoOverlappingData is returned when the input series share no date
	// inside the requested window.
	ErrNoOverlappingData = errors.New("no overlapping data across price series")

	// ErrEmptyPanel is returned when a simulation is started on a panel
	// without any aligned dates.
	ErrEmptyPanel = errors.New("price panel contains no dates")

	// ErrMissingPriorPrice means an instrument had no price strictly before
	// a simulated date. Alignment prevents this; seeing it is a bug.
	ErrMissingPriorPrice = errors.New("missing prior price")

	// ErrInsufficientData is returned when a balance series is too short to
	// derive returns from.
	ErrInsufficientData = errors.New("insufficient data: at least 2 points required")

	// ErrNonPositiveBalance is returned when a balance series holds a zero,
	// negative or non-finite value, which leaves returns undefined.
	ErrNonPositiveBalance = errors.New("balance must be positive and finite")

	ErrLengthMismatch      = errors.New("weight count does not match asset count")
	ErrUnnormalizedWeights = errors.New("weights do not sum to 1")
	ErrNegativeWeight      = errors.New("weights must be non-negative")
	ErrUnknownCadence      = errors.New("unknown rebalance cadence")
	ErrEmptySeries         = errors.New("price series is empty")
	ErrInvalidPrice        = errors.New("price must be positive and finite")
	ErrDuplicateDate       = errors.New("duplicate date in price series")
)

// IsInputError reports whether err was caused by bad caller input rather than
// an internal or I/O failure.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrNoOverlappingData,
		ErrEmptyPanel,
		ErrInsufficientData,
		ErrNonPositiveBalance,
		ErrLengthMismatch,
		ErrUnnormalizedWeights,
		ErrNegativeWeight,
		ErrUnknownCadence,
		ErrEmptySeries,
		ErrInvalidPrice,
		ErrDuplicateDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

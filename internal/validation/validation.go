// Package validation checks API and CLI input before it reaches the engine
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator accumulates field errors
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Err returns the accumulated errors, or nil
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// Positive validates that a number is positive and finite
func (v *Validator) Positive(field string, value float64) {
	if !(value > 0) || math.IsInf(value, 0) {
		v.AddError(field, "must be positive")
	}
}

// NonNegative validates that a number is non-negative and finite
func (v *Validator) NonNegative(field string, value float64) {
	if !(value >= 0) || math.IsInf(value, 0) {
		v.AddError(field, "must be non-negative")
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// UUID validates UUID format
func (v *Validator) UUID(field, value string) {
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "must be a valid UUID")
	}
}

var tickerRegex = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.=-]{0,14}$`)

// Ticker validates an upper-case ticker such as SPY, BRK.B or ^GSPC
func (v *Validator) Ticker(field, value string) {
	if !tickerRegex.MatchString(value) {
		v.AddError(field, "must be a valid ticker (e.g., SPY)")
	}
}

// Date validates a YYYY-MM-DD date. Empty values are accepted.
func (v *Validator) Date(field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		v.AddError(field, "must be a date in YYYY-MM-DD format")
	}
}

// BacktestRequestValidator validates the fields of a backtest request
type BacktestRequestValidator struct {
	*Validator
}

// NewBacktestRequestValidator creates a new backtest request validator
func NewBacktestRequestValidator() *BacktestRequestValidator {
	return &BacktestRequestValidator{Validator: NewValidator()}
}

// MaxTickers bounds the number of assets in one request
const MaxTickers = 50

// ValidateTickers checks count, format and uniqueness
func (v *BacktestRequestValidator) ValidateTickers(tickers []string) {
	if len(tickers) == 0 {
		v.AddError("tickers", "at least one ticker is required")
		return
	}
	if len(tickers) > MaxTickers {
		v.AddError("tickers", fmt.Sprintf("at most %d tickers are allowed", MaxTickers))
	}
	seen := make(map[string]bool, len(tickers))
	for i, t := range tickers {
		field := fmt.Sprintf("tickers[%d]", i)
		v.Ticker(field, t)
		if seen[t] {
			v.AddError(field, fmt.Sprintf("duplicate ticker %s", t))
		}
		seen[t] = true
	}
}

// ValidateWeights checks that each weight is non-negative and that there
// is one per ticker. Sum checks belong to the engine's weight policy.
func (v *BacktestRequestValidator) ValidateWeights(weights []float64, tickerCount int) {
	if len(weights) != tickerCount {
		v.AddError("weights", fmt.Sprintf("expected %d weights, got %d", tickerCount, len(weights)))
	}
	for i, w := range weights {
		v.NonNegative(fmt.Sprintf("weights[%d]", i), w)
	}
}

// ValidateBenchmark checks the benchmark ticker. When allowed is non-empty
// the benchmark must be one of them.
func (v *BacktestRequestValidator) ValidateBenchmark(benchmark string, allowed []string) {
	if benchmark == "" {
		v.AddError("benchmark", "is required")
		return
	}
	if len(allowed) > 0 {
		v.OneOf("benchmark", benchmark, allowed)
		return
	}
	v.Ticker("benchmark", benchmark)
}

// ValidateInitialValue checks the starting balance
func (v *BacktestRequestValidator) ValidateInitialValue(value float64) {
	v.Positive("initial_value", value)
}

// ValidateDateRange checks both dates and their order
func (v *BacktestRequestValidator) ValidateDateRange(start, end string) {
	v.Date("start_date", start)
	v.Date("end_date", end)
	if start == "" || end == "" {
		return
	}
	s, err1 := time.Parse(time.DateOnly, start)
	e, err2 := time.Parse(time.DateOnly, end)
	if err1 == nil && err2 == nil && e.Before(s) {
		v.AddError("end_date", "must not be before start_date")
	}
}

// SanitizeInput strips null bytes, trims and bounds the length of input
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)

	if len(input) > 10000 {
		input = input[:10000]
	}

	return input
}

// SanitizeTicker upper-cases a ticker and removes whitespace
func SanitizeTicker(ticker string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ticker), ""))
}

// SanitizeTickers applies SanitizeTicker to every element
func SanitizeTickers(tickers []string) []string {
	out := make([]string, len(tickers))
	for i, t := range tickers {
		out[i] = SanitizeTicker(t)
	}
	return out
}

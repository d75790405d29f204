package indicators

import (
	"errors"

	"github.com/yourusername/quantlink-pairs-engine/pkg/stats"
)

var (
	// ErrInsufficientData is returned when a window has not filled yet
	ErrInsufficientData = stats.ErrInsufficientData

	// ErrInvalidParameter is returned when a parameter value is invalid
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoQuote is returned when the side of the book a signal compares
	// against is missing on this tick
	ErrNoQuote = errors.New("no quote on required side")
)

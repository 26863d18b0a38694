package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const MaxDimension = math.MaxUint16

type OutputPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
	Sequence  uint64 `json:"sequence"`
}

type InputPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

type SelectPayload struct {
	SessionID string `json:"sessionId"`
}

// ResizePayload keeps the dimensions raw, they are validated with ParseDimensions.
type ResizePayload struct {
	SessionID string          `json:"sessionId"`
	Cols      json.RawMessage `json:"cols"`
	Rows      json.RawMessage `json:"rows"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Dimensions struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type Session struct {
	ID               string     `json:"id"`
	DisplayName      string     `json:"displayName"`
	ProcessID        int        `json:"processId"`
	WorkingDirectory string     `json:"workingDirectory"`
	ShellKind        string     `json:"shellKind"`
	Dimensions       Dimensions `json:"dimensions"`
	IsActive         bool       `json:"isActive"`
	IsMarkedSpecial  bool       `json:"isMarkedSpecial"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastActivityAt   time.Time  `json:"lastActivityAt"`
	Status           string     `json:"status"`
}

type ListPayload struct {
	Sessions        []Session `json:"sessions"`
	ActiveSessionID *string   `json:"activeSessionId"`
}

// Error codes carried in ErrorPayload.Code.
const (
	CodeMalformed      = "malformed_message"
	CodeUnknownType    = "unknown_message_type"
	CodeUnexpectedType = "unexpected_message_type"
	CodeUnknownSession = "unknown_session"
	CodeInvalidSize    = "invalid_dimensions"
	CodeRateLimited    = "rate_limited"
)

// ParseDimensions validates raw JSON values for columns and rows: both must be present,
// numeric, integral, positive and fit into a PTY window size.
func ParseDimensions(rawCols, rawRows json.RawMessage) (int, int, error) {
	cols, err := parseDimension("cols", rawCols)
	if err != nil {
		return 0, 0, err
	}

	rows, err := parseDimension("rows", rawRows)
	if err != nil {
		return 0, 0, err
	}

	return cols, rows, nil
}

func parseDimension(name string, raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: %s is missing", ErrMalformed, name)
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformed, name)
	}

	if value != math.Trunc(value) {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformed, name)
	}

	if value <= 0 || value > MaxDimension {
		return 0, fmt.Errorf("%w: %s is out of range", ErrMalformed, name)
	}

	return int(value), nil
}

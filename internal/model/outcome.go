package model

import (
	"fmt"
	"time"
)

// ReferenceCodeLength is the exact number of characters in a reference code.
const ReferenceCodeLength = 5

// DefaultTimeoutMillis applies when a request does not carry a timeout.
const DefaultTimeoutMillis = 30000

// Failure messages reported at the request level.
const (
	MsgInvalidReferenceCode = "Reference code must be exactly 5 characters"
	MsgNoActiveAccounts     = "No active email accounts found"
	MsgNoAccountSettled     = "Failed to retrieve OTP from any account"
)

// Request asks for the OTP that accompanies ReferenceCode in a recent email.
type Request struct {
	ReferenceCode string `json:"referenceCode"`

	// AccountIDs restricts the search; empty means every active account.
	AccountIDs []string `json:"accountIds,omitempty"`

	// TimeoutMillis bounds each account search; zero means the default.
	TimeoutMillis int `json:"timeout,omitempty"`
}

// Timeout returns the per-account search budget, falling back to
// fallback when the request carries no positive timeout.
func (r Request) Timeout(fallback time.Duration) time.Duration {
	if r.TimeoutMillis > 0 {
		return time.Duration(r.TimeoutMillis) * time.Millisecond
	}
	return fallback
}

// Outcome is the result of searching one account, and also the shape of
// the aggregated result returned for a whole request.
type Outcome struct {
	Success   bool      `json:"success"`
	OTP       string    `json:"otp,omitempty"`
	AccountID string    `json:"accountId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Found builds a successful outcome for acc.
func Found(acc Account, otp string) Outcome {
	return Outcome{
		Success:   true,
		OTP:       otp,
		AccountID: acc.ID,
		Email:     acc.Email,
		Timestamp: time.Now().UTC(),
	}
}

// AccountFailure builds a failed outcome attributed to acc.
func AccountFailure(acc Account, format string, args ...any) Outcome {
	return Outcome{
		Error:     fmt.Sprintf(format, args...),
		AccountID: acc.ID,
		Email:     acc.Email,
		Timestamp: time.Now().UTC(),
	}
}

// Failure builds a failed outcome that is not tied to any account.
func Failure(msg string) Outcome {
	return Outcome{
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

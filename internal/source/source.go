package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/otp-relay/internal/model"
)

// AuthError indicates that a mail server rejected the account credentials.
type AuthError struct {
	AccountID string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.AccountID, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Envelope holds the envelope data of a fetched message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
}

// Message is a fetched message with its raw RFC 5322 source.
type Message struct {
	UID          uint32
	InternalDate time.Time
	Envelope     Envelope
	Raw          []byte
}

// Dialer opens authenticated mailbox sessions.
type Dialer interface {
	// Dial connects to the account's mail server and logs in.
	Dial(ctx context.Context, acc model.Account) (Session, error)
}

// Session is a single authenticated connection to a mail server.
// A session is used by one goroutine at a time.
type Session interface {
	// Lock claims exclusive use of mailbox on this session and selects it.
	// The returned release func must be called exactly once; further
	// calls are no-ops.
	Lock(ctx context.Context, mailbox string) (release func(), err error)

	// FetchSince returns messages in the locked mailbox received at or
	// after since, in server order, each with its raw source.
	FetchSince(ctx context.Context, since time.Time) ([]Message, error)

	// Close logs out and releases the connection.
	Close() error
}

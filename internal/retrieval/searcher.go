package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/otp"
	"github.com/nhle/otp-relay/internal/source"
	"github.com/nhle/otp-relay/internal/source/email"
)

// DefaultLookback is how far back messages are considered when the
// searcher is built without an explicit lookback.
const DefaultLookback = 10 * time.Minute

// Searcher looks for a reference code in the recent mail of one account.
type Searcher struct {
	dialer   source.Dialer
	mailbox  string
	lookback time.Duration
	now      func() time.Time
}

// NewSearcher returns a Searcher that locks mailbox on each account and
// reads messages received within lookback of the call time.
func NewSearcher(dialer source.Dialer, mailbox string, lookback time.Duration) *Searcher {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Searcher{
		dialer:   dialer,
		mailbox:  mailbox,
		lookback: lookback,
		now:      time.Now,
	}
}

// Search opens a session to acc, scans the recent messages in server
// order and returns the first OTP found alongside referenceCode.
// Protocol failures are reported as a failed outcome, never returned.
func (s *Searcher) Search(
	ctx context.Context, acc model.Account, referenceCode string,
) model.Outcome {
	session, err := s.dialer.Dial(ctx, acc)
	if err != nil {
		return searchError(acc, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().
				Str("pkg", pkgName).
				Str("account_id", acc.ID).
				Err(err).
				Msg("closing mail session")
		}
	}()

	release, err := session.Lock(ctx, s.mailbox)
	if err != nil {
		return searchError(acc, err)
	}
	defer release()

	since := s.now().Add(-s.lookback)
	messages, err := session.FetchSince(ctx, since)
	if err != nil {
		return searchError(acc, err)
	}

	log.Debug().
		Str("pkg", pkgName).
		Str("account_id", acc.ID).
		Int("messages", len(messages)).
		Time("since", since).
		Msg("fetched recent messages")

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return searchError(acc, err)
		}

		text := email.PlainText(msg.Raw)
		if !strings.Contains(text, referenceCode) {
			continue
		}
		if code, ok := otp.Extract(text, referenceCode); ok {
			log.Info().
				Str("pkg", pkgName).
				Str("account_id", acc.ID).
				Uint32("uid", msg.UID).
				Msg("OTP found")
			return model.Found(acc, code)
		}
	}

	return model.AccountFailure(acc,
		"No OTP found for reference code: %s in account %s", referenceCode, acc.ID)
}

func searchError(acc model.Account, err error) model.Outcome {
	log.Warn().
		Str("pkg", pkgName).
		Str("account_id", acc.ID).
		Bool("auth", source.IsAuthError(err)).
		Err(err).
		Msg("account search failed")
	return model.AccountFailure(acc, "Error searching account %s: %v", acc.ID, err)
}

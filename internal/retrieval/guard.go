package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/nhle/otp-relay/internal/model"
)

// SearchFunc searches a single account for the OTP tied to referenceCode.
type SearchFunc func(ctx context.Context, acc model.Account, referenceCode string) model.Outcome

// Guard runs search for acc and gives up after timeout. On timeout the
// search keeps running in the background with a cancelled context so it
// can close its own session; its result is discarded. A panic inside
// search becomes a failed outcome.
func Guard(
	ctx context.Context,
	acc model.Account,
	referenceCode string,
	timeout time.Duration,
	search SearchFunc,
) model.Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		outcome model.Outcome
		err     error
	}

	// Buffered so an abandoned search never blocks on send.
	ch := make(chan result, 1)
	go func() {
		var out model.Outcome
		var catcher panics.Catcher
		catcher.Try(func() { out = search(ctx, acc, referenceCode) })
		if r := catcher.Recovered(); r != nil {
			ch <- result{err: r.AsError()}
			return
		}
		ch <- result{outcome: out}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Error().
				Str("pkg", pkgName).
				Str("account_id", acc.ID).
				Err(r.err).
				Msg("account search panicked")
			return guardFailure(acc, r.err.Error())
		}
		return r.outcome
	case <-ctx.Done():
		log.Warn().
			Str("pkg", pkgName).
			Str("account_id", acc.ID).
			Dur("timeout", timeout).
			Err(ctx.Err()).
			Msg("account search abandoned")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return guardFailure(acc, "Search timeout")
		}
		return guardFailure(acc, ctx.Err().Error())
	}
}

func guardFailure(acc model.Account, reason string) model.Outcome {
	return model.AccountFailure(acc, "Timeout or error searching account %s: %s", acc.ID, reason)
}

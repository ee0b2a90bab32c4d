// Package retrieval searches mail accounts concurrently for the OTP that
// accompanies a reference code and reduces the per-account outcomes to a
// single result.
package retrieval

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/nhle/otp-relay/internal/model"
)

const pkgName = "retrieval"

// AccountSource supplies the accounts a request may target.
type AccountSource interface {
	ListActive() []model.Account
	FindByID(id string) (model.Account, bool)
}

// Settlement is the terminal state of one guarded account search.
// Err is set when the task failed without producing an outcome.
type Settlement struct {
	Outcome model.Outcome
	Err     error
}

// Service orchestrates a retrieval across accounts.
type Service struct {
	accounts       AccountSource
	search         SearchFunc
	defaultTimeout time.Duration
}

// NewService wires the orchestrator. A non-positive defaultTimeout falls
// back to model.DefaultTimeoutMillis.
func NewService(accounts AccountSource, search SearchFunc, defaultTimeout time.Duration) *Service {
	if defaultTimeout <= 0 {
		defaultTimeout = model.DefaultTimeoutMillis * time.Millisecond
	}
	return &Service{
		accounts:       accounts,
		search:         search,
		defaultTimeout: defaultTimeout,
	}
}

// Retrieve validates req, searches every targeted account concurrently
// and returns the aggregated outcome. It always returns a result.
func (s *Service) Retrieve(ctx context.Context, req model.Request) (result model.Outcome) {
	requestID := uuid.NewString()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("pkg", pkgName).
				Str("request_id", requestID).
				Interface("panic", r).
				Msg("retrieval failed")
			result = model.Failure(fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	if utf8.RuneCountInString(req.ReferenceCode) != model.ReferenceCodeLength {
		return model.Failure(model.MsgInvalidReferenceCode)
	}

	accounts := s.ResolveAccounts(req.AccountIDs)
	if len(accounts) == 0 {
		log.Info().
			Str("pkg", pkgName).
			Str("request_id", requestID).
			Strs("requested", req.AccountIDs).
			Msg("no active accounts to search")
		return model.Failure(model.MsgNoActiveAccounts)
	}

	timeout := req.Timeout(s.defaultTimeout)
	settlements := s.settleAll(ctx, accounts, req.ReferenceCode, timeout)
	result = Aggregate(settlements)

	log.Info().
		Str("pkg", pkgName).
		Str("request_id", requestID).
		Int("accounts", len(accounts)).
		Bool("success", result.Success).
		Str("account_id", result.AccountID).
		Dur("elapsed", time.Since(started)).
		Msg("retrieval finished")

	return result
}

// ResolveAccounts returns the accounts a request targets. Explicit ids
// are looked up in the given order, keeping only active accounts and
// duplicates; no ids means every active account.
func (s *Service) ResolveAccounts(ids []string) []model.Account {
	if len(ids) == 0 {
		return s.accounts.ListActive()
	}

	var out []model.Account
	for _, id := range ids {
		acc, ok := s.accounts.FindByID(id)
		if !ok || !acc.Searchable() {
			continue
		}
		out = append(out, acc)
	}
	return out
}

// settleAll runs one guarded search per account and waits for all of
// them. Settlements are indexed like accounts.
func (s *Service) settleAll(
	ctx context.Context,
	accounts []model.Account,
	referenceCode string,
	timeout time.Duration,
) []Settlement {
	settlements := make([]Settlement, len(accounts))

	var wg conc.WaitGroup
	for i, acc := range accounts {
		wg.Go(func() {
			var catcher panics.Catcher
			catcher.Try(func() {
				settlements[i].Outcome = Guard(ctx, acc, referenceCode, timeout, s.search)
			})
			if r := catcher.Recovered(); r != nil {
				settlements[i] = Settlement{Err: r.AsError()}
			}
		})
	}
	wg.Wait()

	return settlements
}

// Aggregate picks the first successful outcome in order. Without one it
// returns the first settled failure, or a generic failure when every
// task failed without an outcome.
func Aggregate(settlements []Settlement) model.Outcome {
	for _, st := range settlements {
		if st.Err == nil && st.Outcome.Success {
			return st.Outcome
		}
	}
	for _, st := range settlements {
		if st.Err == nil {
			return st.Outcome
		}
	}
	return model.Failure(model.MsgNoAccountSettled)
}

package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog/log"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/source"
)

const pkgName = "email"

const logoutTimeout = 5 * time.Second

// IMAPDialer opens go-imap v2 sessions to IMAP servers.
type IMAPDialer struct {
	// TLSConfig overrides the TLS settings used for both implicit TLS
	// and STARTTLS; nil uses the system defaults.
	TLSConfig *tls.Config
}

var _ source.Dialer = (*IMAPDialer)(nil)

// NewIMAPDialer returns a dialer with default TLS settings.
func NewIMAPDialer() *IMAPDialer {
	return &IMAPDialer{}
}

// Dial establishes a connection to the account's IMAP server and
// authenticates. Secure accounts use implicit TLS; others upgrade
// with STARTTLS. Cancelling ctx aborts the dial and any handshake still
// waiting on the server.
func (d *IMAPDialer) Dial(
	ctx context.Context, acc model.Account,
) (source.Session, error) {
	addr := acc.Addr()
	tlsConfig := d.tlsConfig(acc.Host)

	conn, err := dialConn(ctx, addr, acc.Secure, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	// The greeting, STARTTLS and LOGIN exchanges block on the server.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	opts := &imapclient.Options{TLSConfig: tlsConfig}

	var client *imapclient.Client
	if acc.Secure {
		client = imapclient.New(conn, opts)
	} else {
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			return nil, fmt.Errorf("starting TLS with %s: %w", addr, interrupted(ctx, err))
		}
	}

	if err := client.Login(acc.Username, acc.Password).Wait(); err != nil {
		_ = client.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("logging in to %s: %w", addr, interrupted(ctx, err))
		}
		return nil, &source.AuthError{
			AccountID: acc.ID,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				acc.Username, err,
			),
		}
	}

	if !stop() {
		_ = client.Close()
		return nil, fmt.Errorf("logging in to %s: %w", addr, ctx.Err())
	}

	log.Debug().
		Str("pkg", pkgName).
		Str("account_id", acc.ID).
		Str("addr", addr).
		Msg("IMAP session established")

	return &imapSession{client: client, accountID: acc.ID}, nil
}

// tlsConfig returns a copy of the dialer's TLS settings with the server
// name defaulted to host, as STARTTLS needs it set explicitly.
func (d *IMAPDialer) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func dialConn(
	ctx context.Context, addr string, secure bool, tlsConfig *tls.Config,
) (net.Conn, error) {
	if !secure {
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", addr)
	}

	cfg := tlsConfig.Clone()
	if cfg.NextProtos == nil {
		cfg.NextProtos = []string{"imap"}
	}
	dialer := tls.Dialer{Config: cfg}
	return dialer.DialContext(ctx, "tcp", addr)
}

// interrupted attaches the context's error to err once ctx is done, so
// callers can tell a cancelled exchange from a server failure.
func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}

// imapSession implements source.Session over an imapclient.Client.
type imapSession struct {
	client    *imapclient.Client
	accountID string

	// mu is the mailbox lock; it is held between Lock and release.
	mu sync.Mutex
}

// Lock selects mailbox read-only and holds the session's mailbox lock
// until the returned release func runs.
func (s *imapSession) Lock(
	ctx context.Context, mailbox string,
) (func(), error) {
	s.mu.Lock()

	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	selectOpts := &imap.SelectOptions{ReadOnly: true}
	if _, err := s.client.Select(mailbox, selectOpts).Wait(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("selecting %s: %w", mailbox, interrupted(ctx, err))
	}

	var once sync.Once
	return func() { once.Do(s.mu.Unlock) }, nil
}

// FetchSince searches the selected mailbox for messages since the given
// time and fetches their envelope and full source. IMAP SEARCH SINCE only
// has day granularity, so results are filtered again on internal date.
// Cancelling ctx closes the connection and fails the pending command.
func (s *imapSession) FetchSince(
	ctx context.Context, since time.Time,
) ([]source.Message, error) {
	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	criteria := &imap.SearchCriteria{
		Since: since,
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", interrupted(ctx, err))
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		UID:          true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []source.Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		if !buf.InternalDate.IsZero() && buf.InternalDate.Before(since) {
			continue
		}

		messages = append(messages, source.Message{
			UID:          uint32(buf.UID),
			InternalDate: buf.InternalDate,
			Envelope:     envelopeFromBuffer(buf),
			Raw:          buf.FindBodySection(bodySection),
		})
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", interrupted(ctx, err))
	}

	return messages, nil
}

// Close logs out and closes the underlying connection. A server that
// does not answer LOGOUT within logoutTimeout is disconnected.
func (s *imapSession) Close() error {
	timer := time.AfterFunc(logoutTimeout, s.abort)
	defer timer.Stop()

	logoutErr := s.client.Logout().Wait()
	_ = s.client.Close()
	if logoutErr != nil {
		return fmt.Errorf("logging out of %s: %w", s.accountID, logoutErr)
	}
	return nil
}

// abort drops the connection, failing any command still in flight.
func (s *imapSession) abort() {
	_ = s.client.Close()
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) source.Envelope {
	var env source.Envelope
	if buf.Envelope == nil {
		return env
	}

	env.MessageID = buf.Envelope.MessageID
	env.Subject = buf.Envelope.Subject
	env.Date = buf.Envelope.Date

	if len(buf.Envelope.From) > 0 {
		from := buf.Envelope.From[0]
		if from.Name != "" {
			env.From = from.Name
		} else {
			env.From = from.Addr()
		}
	}

	for _, to := range buf.Envelope.To {
		env.To = append(env.To, to.Addr())
	}

	return env
}

package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/source"
)

type fakeDialer struct {
	session *fakeSession
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, _ model.Account) (source.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

type fakeSession struct {
	messages []source.Message
	lockErr  error
	fetchErr error
	closeErr error

	mu       sync.Mutex
	mailbox  string
	since    time.Time
	released int
	closed   int
}

func (s *fakeSession) Lock(_ context.Context, mailbox string) (func(), error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	s.mu.Lock()
	s.mailbox = mailbox
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
	}, nil
}

func (s *fakeSession) FetchSince(_ context.Context, since time.Time) ([]source.Message, error) {
	s.mu.Lock()
	s.since = since
	s.mu.Unlock()
	return s.messages, s.fetchErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return s.closeErr
}

func rawMessage(body string) source.Message {
	return source.Message{
		Raw: []byte("From: bank@example.com\r\n" +
			"Subject: Your code\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + body + "\r\n"),
	}
}

type mockAccountSource struct {
	mock.Mock
}

func (m *mockAccountSource) ListActive() []model.Account {
	args := m.Called()
	return args.Get(0).([]model.Account)
}

func (m *mockAccountSource) FindByID(id string) (model.Account, bool) {
	args := m.Called(id)
	return args.Get(0).(model.Account), args.Bool(1)
}

func testAccount(id string) model.Account {
	return model.Account{
		ID:       id,
		Host:     "imap.example.com",
		Port:     993,
		Secure:   true,
		Username: id + "@example.com",
		Password: "secret",
		Email:    id + "@example.com",
		Active:   true,
	}
}

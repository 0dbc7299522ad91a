package auth

import (
	"context"
	"sync"
	"time"
)

// TokenSource supplies the bearer credential for outgoing gateway calls.
// Invalidate is called when the gateway answers 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a fixed credential, e.g. one handed over by an external
// auth service through configuration.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

func (StaticToken) Invalidate() {}

// SignedTokenSource mints service tokens with a Signer and caches them until
// shortly before expiry.
type SignedTokenSource struct {
	signer  *Signer
	subject string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// refreshSkew renews cached tokens this long before they expire.
const refreshSkew = 30 * time.Second

// NewSignedTokenSource returns a TokenSource issuing tokens for subject.
func NewSignedTokenSource(signer *Signer, subject string) *SignedTokenSource {
	return &SignedTokenSource{signer: signer, subject: subject}
}

func (s *SignedTokenSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.signer.now().Add(refreshSkew).Before(s.expiry) {
		return s.token, nil
	}
	token, exp, err := s.signer.Sign(s.subject)
	if err != nil {
		return "", err
	}
	s.token, s.expiry = token, exp
	return token, nil
}

func (s *SignedTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

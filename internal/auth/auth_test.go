package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestSigner(ttl time.Duration) (*Signer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSigner("secret", ttl)
	s.now = clock.now
	return s, clock
}

func TestSignVerify(t *testing.T) {
	s, _ := newTestSigner(time.Hour)

	token, exp, err := s.Sign("api")
	require.NoError(t, err)
	assert.Equal(t, s.now().Add(time.Hour), exp)

	subject, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "api", subject)
}

func TestVerify_Rejects(t *testing.T) {
	s, clock := newTestSigner(time.Minute)
	valid, _, err := s.Sign("api")
	require.NoError(t, err)

	other, _ := newTestSigner(time.Minute)
	other.secret = []byte("different")
	forged, _, err := other.Sign("api")
	require.NoError(t, err)

	noSubject, _, err := s.Sign("")
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "api", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Minute)),
	}}).SignedString(s.secret)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not-a-jwt",
		"forged":     forged,
		"no subject": noSubject,
		"wrong alg":  wrongAlg,
	} {
		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	_, err = s.Verify(valid)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

// TestSigner_GatewayAudience keeps end-user tokens out of the gateway while
// service tokens still pass the user-facing check.
func TestSigner_GatewayAudience(t *testing.T) {
	users, _ := newTestSigner(time.Hour)
	gw := users.WithAudience(GatewayAudience)

	userToken, _, err := users.Sign("viewer")
	require.NoError(t, err)
	_, err = gw.Verify(userToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	serviceToken, _, err := gw.Sign("chatcall-api")
	require.NoError(t, err)
	subject, err := gw.Verify(serviceToken)
	require.NoError(t, err)
	assert.Equal(t, "chatcall-api", subject)

	otherAud, _, err := users.WithAudience("elsewhere").Sign("chatcall-api")
	require.NoError(t, err)
	_, err = gw.Verify(otherAud)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Empty(t, users.audience, "WithAudience must not modify the receiver")
}

func TestRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newTestSigner(time.Hour)
	token, _, err := s.Sign("viewer-7")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireBearer(s), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})

	for header, want := range map[string]int{
		"":                       http.StatusUnauthorized,
		"Basic abc":              http.StatusUnauthorized,
		"Bearer nope":            http.StatusUnauthorized,
		"Bearer " + token:        http.StatusOK,
		"bearer " + token + "  ": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, header)
		if want == http.StatusOK {
			assert.Equal(t, "viewer-7", w.Body.String())
		}
	}
}

func TestSignedTokenSource(t *testing.T) {
	s, clock := newTestSigner(10 * time.Minute)
	src := NewSignedTokenSource(s, "api")
	ctx := context.Background()

	first, err := src.Token(ctx)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Minute)
	cached, err := src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cached, "token is reused while fresh")

	src.Invalidate()
	renewed, err := src.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed, "Invalidate forces a new token")

	clock.t = clock.t.Add(10*time.Minute - 20*time.Second)
	refreshed, err := src.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, renewed, refreshed, "token is renewed shortly before expiry")

	subject, err := s.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "api", subject)
}

func TestStaticToken(t *testing.T) {
	var src TokenSource = StaticToken("abc")
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	src.Invalidate()
}

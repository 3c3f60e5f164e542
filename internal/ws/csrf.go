package ws

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid anti-forgery token")
	ErrTokenExpired = errors.New("anti-forgery token expired")
)

// Tokens issues and checks the anti-forgery tokens embedded in the live
// page. A token is "<nonce>.<expiry>.<mac>" where mac signs nonce and expiry.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokens returns a token issuer. An empty secret gets a random one, which
// invalidates outstanding tokens on restart.
func NewTokens(secret string, ttl time.Duration, clk clock.Clock) *Tokens {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tokens{secret: key, ttl: ttl, clock: clk}
}

// Issue returns a fresh token.
func (t *Tokens) Issue() string {
	body := uuid.NewString() + "." + strconv.FormatInt(t.clock.Now().Add(t.ttl).Unix(), 10)
	return body + "." + t.sign(body)
}

// Validate checks a token's signature and expiry.
func (t *Tokens) Validate(token string) error {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return ErrInvalidToken
	}
	body, mac := token[:i], token[i+1:]
	if !hmac.Equal([]byte(mac), []byte(t.sign(body))) {
		return ErrInvalidToken
	}
	nonce, exp, ok := strings.Cut(body, ".")
	if !ok {
		return ErrInvalidToken
	}
	if _, err := uuid.Parse(nonce); err != nil {
		return ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	if !t.clock.Now().Before(time.Unix(unix, 0)) {
		return ErrTokenExpired
	}
	return nil
}

func (t *Tokens) sign(body string) string {
	h := hmac.New(sha256.New, t.secret)
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

const bearerPrefix = "Bearer "

// BearerToken is an opaque bearer credential. It is passed through as is;
// nothing in this module verifies it.
type BearerToken struct {
	raw string
}

// NewBearerToken returns a token from its raw value. A leading "Bearer "
// scheme, matched case-insensitively, is stripped.
func NewBearerToken(raw string) BearerToken {
	raw = strings.TrimLeft(raw, " \t")
	if hasBearerPrefix(raw) {
		raw = raw[len(bearerPrefix):]
	}
	return BearerToken{raw: strings.TrimSpace(raw)}
}

func hasBearerPrefix(s string) bool {
	return len(s) >= len(bearerPrefix) && strings.EqualFold(s[:len(bearerPrefix)], bearerPrefix)
}

// FromRequest extracts the bearer token of an HTTP request, if any. A header
// carrying the scheme without a credential yields no token.
func FromRequest(r *http.Request) (BearerToken, bool) {
	h := r.Header.Get("Authorization")
	if !hasBearerPrefix(h) {
		return BearerToken{}, false
	}
	t := BearerToken{raw: strings.TrimSpace(h[len(bearerPrefix):])}
	return t, !t.IsZero()
}

// IsZero reports whether the token is empty.
func (t BearerToken) IsZero() bool { return t.raw == "" }

// Value returns the raw token.
func (t BearerToken) Value() string { return t.raw }

// String redacts the token for logs.
func (t BearerToken) String() string {
	if t.IsZero() {
		return ""
	}
	return "Bearer [redacted]"
}

// Header returns the Authorization header value.
func (t BearerToken) Header() string {
	return bearerPrefix + t.raw
}

// parse reads the token as a JWT without verifying its signature.
func (t BearerToken) parse() (jwt.Token, bool) {
	if strings.Count(t.raw, ".") != 2 {
		return nil, false
	}
	tok, err := jwt.ParseInsecure([]byte(t.raw))
	if err != nil {
		return nil, false
	}
	return tok, true
}

// Expiry returns the "exp" claim when the token is a JWT carrying one.
func (t BearerToken) Expiry() (time.Time, bool) {
	tok, ok := t.parse()
	if !ok {
		return time.Time{}, false
	}
	return tok.Expiration()
}

// Subject returns the "sub" claim when the token is a JWT carrying one.
func (t BearerToken) Subject() (string, bool) {
	tok, ok := t.parse()
	if !ok {
		return "", false
	}
	return tok.Subject()
}

// Expired reports whether the token is a JWT that expired before now.
// Opaque tokens never expire as far as the client can tell.
func (t BearerToken) Expired(now time.Time) bool {
	exp, ok := t.Expiry()
	return ok && !exp.IsZero() && now.After(exp)
}

// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the caller's bearer credential through the A2A
// stack. Auth policy is left to the agent: the server records who called,
// the client presents a token, and neither verifies anything.
package auth

import "context"

// User represents the caller of a request.
type User interface {
	// IsAuthenticated reports whether the caller presented a credential.
	// The credential is not verified.
	IsAuthenticated() bool

	// UserName returns the caller's name, empty when unknown.
	UserName() string
}

// UnauthenticatedUser is the caller that presented no credential.
// It is safe to use as a zero value.
type UnauthenticatedUser struct{}

// IsAuthenticated always returns false for unauthenticated users.
func (UnauthenticatedUser) IsAuthenticated() bool { return false }

// UserName always returns an empty string for unauthenticated users.
func (UnauthenticatedUser) UserName() string { return "" }

// TokenUser is a caller that presented a bearer token.
type TokenUser struct {
	Token BearerToken
}

// IsAuthenticated implements [User].
func (u TokenUser) IsAuthenticated() bool { return !u.Token.IsZero() }

// UserName returns the JWT subject of the token, if any.
func (u TokenUser) UserName() string {
	sub, _ := u.Token.Subject()
	return sub
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the caller recorded in ctx, or
// [UnauthenticatedUser] when none is.
func UserFromContext(ctx context.Context) User {
	if u, ok := ctx.Value(userKey{}).(User); ok && u != nil {
		return u
	}
	return UnauthenticatedUser{}
}

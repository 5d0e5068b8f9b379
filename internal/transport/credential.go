package transport

import (
	"context"
	"errors"
)

// ErrUnknownCredential is returned by resolvers for references they do not hold
var ErrUnknownCredential = errors.New("unknown credential reference")

// Credential is secret material for one remote login. It is resolved per
// open and never retained by a Transport.
type Credential struct {
	User       string
	Password   string
	PrivateKey []byte
	Passphrase string
	UseAgent   bool
}

// CredentialResolver turns an opaque reference into a Credential
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (Credential, error)
}

// HostCredentialResolver is implemented by resolvers that can pick a
// credential for a host when a spec names no reference
type HostCredentialResolver interface {
	ResolveHost(ctx context.Context, user, host string) (Credential, error)
}

// StaticCredentials resolves references from a fixed map. An empty reference
// resolves to the zero Credential.
type StaticCredentials map[string]Credential

// Resolve implements CredentialResolver
func (s StaticCredentials) Resolve(_ context.Context, ref string) (Credential, error) {
	if ref == "" {
		return Credential{}, nil
	}
	c, ok := s[ref]
	if !ok {
		return Credential{}, ErrUnknownCredential
	}
	return c, nil
}

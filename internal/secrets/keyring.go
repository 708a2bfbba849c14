// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

// Package secrets stores the backend API token in the OS keyring, so it
// never lands in config files or shell history.
package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Service is the keyring service name all Tandem secrets live under.
const Service = "tandem"

// TokenKey is the keyring key holding the backend API token.
const TokenKey = "api-token"

// Store implements secret storage on the OS keyring. On macOS it uses
// Keychain, on Linux secret-service (D-Bus), and on Windows the Credential
// Manager.
type Store struct {
	service string
}

// NewStore returns a keyring-backed secret store.
func NewStore() *Store {
	return &Store{service: Service}
}

// SetToken stores the backend API token.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return tanderr.New(tanderr.CodeSecretInvalidInput, "secret store: token must not be empty")
	}

	if err := keyring.Set(s.service, TokenKey, token); err != nil {
		return tanderr.Wrapf(err, tanderr.CodeSecretStoreFailure, "storing secret %s/%s", s.service, TokenKey)
	}
	return nil
}

// Token retrieves the backend API token.
func (s *Store) Token() (string, error) {
	val, err := keyring.Get(s.service, TokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", tanderr.Errorf(tanderr.CodeSecretNotFound, "secret %s/%s not found", s.service, TokenKey)
		}
		return "", tanderr.Wrapf(err, tanderr.CodeSecretStoreFailure, "retrieving secret %s/%s", s.service, TokenKey)
	}
	return val, nil
}

// TokenOrEmpty returns the stored token, or empty when none is set. Only
// genuine keyring failures surface as errors.
func (s *Store) TokenOrEmpty() (string, error) {
	val, err := s.Token()
	if err != nil {
		if tanderr.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

// ClearToken removes the backend API token.
func (s *Store) ClearToken() error {
	if err := keyring.Delete(s.service, TokenKey); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return tanderr.Errorf(tanderr.CodeSecretNotFound, "secret %s/%s not found", s.service, TokenKey)
		}
		return tanderr.Wrapf(err, tanderr.CodeSecretDeleteFailure, "deleting secret %s/%s", s.service, TokenKey)
	}
	return nil
}

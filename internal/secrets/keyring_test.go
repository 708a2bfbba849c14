// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package secrets_test

import (
	"testing"

	"github.com/tandem-dev/tandem/internal/secrets"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	// Use the mock keyring for all tests so they don't touch the real OS keyring.
	keyring.MockInit()
}

func TestSetAndGetToken(t *testing.T) {
	s := secrets.NewStore()

	require.NoError(t, s.SetToken("tk-secret-123"))

	val, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "tk-secret-123", val)
}

func TestSetEmptyTokenRejected(t *testing.T) {
	s := secrets.NewStore()

	err := s.SetToken("")
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeSecretInvalidInput))
}

func TestClearToken(t *testing.T) {
	s := secrets.NewStore()

	require.NoError(t, s.SetToken("temp"))
	require.NoError(t, s.ClearToken())

	_, err := s.Token()
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeSecretNotFound))
}

func TestTokenOrEmpty(t *testing.T) {
	s := secrets.NewStore()
	_ = s.ClearToken()

	val, err := s.TokenOrEmpty()
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetToken("tk"))
	val, err = s.TokenOrEmpty()
	require.NoError(t, err)
	assert.Equal(t, "tk", val)
}

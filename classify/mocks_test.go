// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/psbtcheck/keychain"
	"github.com/stretchr/testify/mock"
)

// mockKeyProvider is a mock implementation of keychain.SeedKeyProvider.
type mockKeyProvider struct {
	mock.Mock
}

// A compile time check to ensure mockKeyProvider implements
// keychain.SeedKeyProvider.
var _ keychain.SeedKeyProvider = (*mockKeyProvider)(nil)

func (m *mockKeyProvider) DeriveRoot(seed []byte,
	net *chaincfg.Params) (keychain.RootKey, error) {

	args := m.Called(seed, net)

	root, _ := args.Get(0).(keychain.RootKey)

	return root, args.Error(1)
}

package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	keys map[string]*APIKeyInfo
	err  error
}

func (m *mockRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return k, nil
}

func TestHashKey(t *testing.T) {
	pepper := []byte("pepper")
	a := HashKey(pepper, "secret")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey(pepper, "secret"))
	assert.NotEqual(t, a, HashKey([]byte("other"), "secret"))
	assert.NotEqual(t, a, HashKey(pepper, "Secret"))
}

func TestAuthenticator_Authenticate(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashKey(pepper, "good-key")
	repo := &mockRepo{keys: map[string]*APIKeyInfo{
		hash: {ID: 1, AccountID: 42, KeyHash: hash, Name: "box office"},
	}}
	a := NewAuthenticator(repo, pepper)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid", key: "good-key"},
		{name: "unknown", key: "bad-key", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Authenticate(context.Background(), tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(42), info.AccountID)
		})
	}
}

func TestAuthenticator_StoredHashMismatch(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashKey(pepper, "good-key")
	repo := &mockRepo{keys: map[string]*APIKeyInfo{
		hash: {ID: 1, AccountID: 42, KeyHash: HashKey(pepper, "other")},
	}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "good-key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAPIKeyInfo_HasScope(t *testing.T) {
	k := &APIKeyInfo{Scopes: []string{"codes", "door"}}
	assert.True(t, k.HasScope("door"))
	assert.False(t, k.HasScope("orders"))
	assert.True(t, (&APIKeyInfo{Scopes: []string{"*"}}).HasScope("orders"))
}

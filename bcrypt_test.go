package login_test

import (
	"testing"

	login "github.com/goliatone/go-login"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "valid password", password: "Passw0rd"},
		{name: "empty password", password: "", wantErr: login.ErrNoEmptyString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := login.HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, login.ComparePasswordAndHash(tt.password, hash))
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := login.HashPassword("Passw0rd")
	require.NoError(t, err)

	assert.NoError(t, login.ComparePasswordAndHash("Passw0rd", hash))
	assert.ErrorIs(t, login.ComparePasswordAndHash("passw0rd", hash), login.ErrMismatchedHashAndPassword)

	err = login.ComparePasswordAndHash("Passw0rd", "not-a-hash")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, login.ErrMismatchedHashAndPassword)
}

func TestRandomPasswordHash(t *testing.T) {
	hash1 := login.RandomPasswordHash()
	hash2 := login.RandomPasswordHash()

	assert.NotEmpty(t, hash1)
	assert.NotEqual(t, hash1, hash2)
}

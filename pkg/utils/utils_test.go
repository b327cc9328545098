package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	venue := int64(5)
	m := NewTokenManager("secret", "dinein-test", time.Hour)

	token, err := m.GenerateAccessToken(10, "host", &venue)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(10), claims.UserID)
	assert.Equal(t, "host", claims.Role)
	require.NotNil(t, claims.VenueID)
	assert.Equal(t, venue, *claims.VenueID)
}

func TestTokenManagerRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewTokenManager("secret", "dinein-test", time.Hour)
	other := NewTokenManager("other", "dinein-test", time.Hour)

	token, err := other.GenerateAccessToken(1, "user", nil)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenManager("secret", "dinein-test", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err = expired.GenerateAccessToken(1, "user", nil)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMoneyConversions(t *testing.T) {
	assert.Equal(t, "50000.00", MoneyString(decimal.NewFromInt(50000)))
	assert.Equal(t, int64(5000000), SumToTiyin(decimal.NewFromInt(50000)))
	assert.True(t, decimal.RequireFromString("123.45").Equal(TiyinToSum(12345)))
}

func TestStrToPositiveInt64(t *testing.T) {
	n, ok := StrToPositiveInt64("42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, ok := StrToPositiveInt64(bad)
		assert.False(t, ok, bad)
	}
}

func TestNewNullString(t *testing.T) {
	assert.Nil(t, NewNullString("   "))
	require.NotNil(t, NewNullString(" A1 "))
	assert.Equal(t, "A1", *NewNullString(" A1 "))
}

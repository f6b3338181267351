package directory

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenHash = "a665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"

func TestNewAccessCredential(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("creates credential with expiry", func(t *testing.T) {
		cred, err := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, DefaultCapabilities, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, tenantID, cred.TenantID)
		require.NotNil(t, cred.ExpiresAt)
		assert.False(t, cred.IsExpired(time.Now()))
		assert.False(t, cred.IsRevoked())
	})

	t.Run("zero ttl means no expiry", func(t *testing.T) {
		cred, err := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, nil, 0)
		require.NoError(t, err)
		assert.Nil(t, cred.ExpiresAt)
		assert.False(t, cred.IsExpired(time.Now().AddDate(10, 0, 0)))
	})

	t.Run("rejects malformed token hash", func(t *testing.T) {
		_, err := NewAccessCredential("short", "short", tenantID, userID, nil, time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects nil tenant id", func(t *testing.T) {
		_, err := NewAccessCredential(testTokenHash, "a665a459", uuid.Nil, userID, nil, time.Hour)
		assert.Error(t, err)
	})
}

func TestAccessCredentialValidate(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("valid credential passes", func(t *testing.T) {
		cred, _ := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, nil, time.Hour)
		assert.NoError(t, cred.Validate(time.Now()))
	})

	t.Run("expired credential fails", func(t *testing.T) {
		cred, _ := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, nil, time.Minute)
		err := cred.Validate(time.Now().Add(2 * time.Minute))
		assert.Error(t, err)
	})

	t.Run("revoked credential fails", func(t *testing.T) {
		cred, _ := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, nil, time.Hour)
		cred.Revoke()
		assert.True(t, cred.IsRevoked())
		assert.Error(t, cred.Validate(time.Now()))
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		cred, _ := NewAccessCredential(testTokenHash, "a665a459", tenantID, userID, nil, time.Hour)
		cred.Revoke()
		first := *cred.RevokedAt
		cred.Revoke()
		assert.Equal(t, first, *cred.RevokedAt)
	})
}

func TestCapabilitySet(t *testing.T) {
	t.Run("round trips through string", func(t *testing.T) {
		set := CapabilitySet{CapabilityFiscalEmit, CapabilityPartnerRead}
		parsed := ParseCapabilitySet(set.String())
		assert.Equal(t, set, parsed)
	})

	t.Run("has", func(t *testing.T) {
		assert.True(t, DefaultCapabilities.Has(CapabilityFiscalEmit))
		assert.False(t, DefaultCapabilities.Has(CapabilityTenantAdmin))
	})

	t.Run("parse skips blanks", func(t *testing.T) {
		set := ParseCapabilitySet("fiscal:read, ,partner:read")
		assert.Len(t, set, 2)
	})

	t.Run("parse empty string", func(t *testing.T) {
		assert.Nil(t, ParseCapabilitySet(""))
	})

	t.Run("credential carries capabilities", func(t *testing.T) {
		cred, err := NewAccessCredential(testTokenHash, "a665a459", uuid.New(), uuid.New(), DefaultCapabilities, time.Hour)
		require.NoError(t, err)
		assert.True(t, cred.CapabilitySet().Has(CapabilityFiscalCancel))
	})
}

func TestNewDirectoryUser(t *testing.T) {
	tenantID := uuid.New()

	t.Run("creates user with normalized email", func(t *testing.T) {
		user, err := NewDirectoryUser("  Jo@Example.COM ", "$2a$10$hash", "Jo", tenantID, DefaultCapabilities)
		require.NoError(t, err)
		assert.Equal(t, "jo@example.com", user.Email)
		assert.True(t, user.Active)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewDirectoryUser("not-an-email", "$2a$10$hash", "", tenantID, nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty password hash", func(t *testing.T) {
		_, err := NewDirectoryUser("jo@example.com", "", "", tenantID, nil)
		assert.Error(t, err)
	})

	t.Run("record login stamps time", func(t *testing.T) {
		user, _ := NewDirectoryUser("jo@example.com", "$2a$10$hash", "", tenantID, nil)
		require.Nil(t, user.LastLoginAt)
		user.RecordLogin()
		require.NotNil(t, user.LastLoginAt)
		assert.True(t, strings.HasPrefix(user.Email, "jo@"))
	})
}

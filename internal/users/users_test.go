package users

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

func newService(t *testing.T) (*Service, *storage.Store[models.User]) {
	t.Helper()
	store, err := storage.Open[models.User](filepath.Join(t.TempDir(), storage.UsersFile), zerolog.Nop())
	require.NoError(t, err)
	return New(store, zerolog.Nop()), store
}

func TestCreateDefaults(t *testing.T) {
	s, _ := newService(t)

	first, err := s.Create(CreateRequest{Username: "alice", Password: "secret1", Nickname: "Alice"})
	require.NoError(t, err)
	second, err := s.Create(CreateRequest{Username: "bob", Password: "secret2", Nickname: "Bob", Role: models.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, models.DefaultAvatar, first.Avatar)
	assert.Equal(t, models.UserEnabled, first.Status)
	assert.Equal(t, models.RoleUser, first.Role)
	assert.NotEqual(t, "secret1", first.Password)

	_, err = s.Create(CreateRequest{Username: "alice", Password: "secret3", Nickname: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = s.Create(CreateRequest{Username: "x", Password: "123", Nickname: "X"})
	assert.ErrorIs(t, err, ErrInvalidUser)

	profiles := s.List()
	require.Len(t, profiles, 2)
	assert.Equal(t, "alice", profiles[0].Username)
}

func TestAuthenticate(t *testing.T) {
	s, _ := newService(t)
	created, err := s.Create(CreateRequest{Username: "alice", Password: "secret1", Nickname: "Alice"})
	require.NoError(t, err)

	user, err := s.Authenticate("alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = s.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = s.Authenticate("nobody", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = s.ChangeStatus(99, created.ID, models.UserDisabled)
	require.NoError(t, err)
	_, err = s.Authenticate("alice", "secret1")
	assert.ErrorIs(t, err, auth.ErrUserDisabled)
}

func TestAuthenticateUpgradesPlainPasswords(t *testing.T) {
	s, store := newService(t)
	require.NoError(t, store.Create(models.User{ID: 1, Username: "legacy", Password: "plain", Status: models.UserEnabled}))

	_, err := s.Authenticate("legacy", "plain")
	require.NoError(t, err)

	stored, _ := s.Get(1)
	assert.True(t, isBcrypt(stored.Password))

	_, err = s.Authenticate("legacy", "plain")
	assert.NoError(t, err, "login keeps working after the upgrade")
}

func TestUpdate(t *testing.T) {
	s, _ := newService(t)
	u, err := s.Create(CreateRequest{Username: "alice", Password: "secret1", Nickname: "Alice"})
	require.NoError(t, err)

	nick, password := "Ali", "changed1"
	perms := []string{"orders"}
	updated, err := s.Update(u.ID, UpdateRequest{Nickname: &nick, Password: &password, Permissions: &perms})
	require.NoError(t, err)
	assert.Equal(t, "Ali", updated.Nickname)
	assert.Equal(t, []string{"orders"}, updated.Permissions)
	assert.NotNil(t, updated.UpdatedAt)

	_, err = s.Authenticate("alice", "changed1")
	assert.NoError(t, err)

	_, err = s.Update(42, UpdateRequest{Nickname: &nick})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	badRole := "root"
	_, err = s.Update(u.ID, UpdateRequest{Role: &badRole})
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestChangeStatus(t *testing.T) {
	s, _ := newService(t)
	u, err := s.Create(CreateRequest{Username: "alice", Password: "secret1", Nickname: "Alice"})
	require.NoError(t, err)

	_, err = s.ChangeStatus(u.ID, u.ID, models.UserDisabled)
	assert.ErrorIs(t, err, ErrOwnStatus)

	_, err = s.ChangeStatus(7, u.ID, "PAUSED")
	assert.ErrorIs(t, err, ErrInvalidUser)

	_, err = s.ChangeStatus(7, 42, models.UserDisabled)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	changed, err := s.ChangeStatus(7, u.ID, models.UserDisabled)
	require.NoError(t, err)
	assert.Equal(t, models.UserDisabled, changed.Status)
}

func TestTwoFactorSecretAndDelete(t *testing.T) {
	s, _ := newService(t)
	u, err := s.Create(CreateRequest{Username: "alice", Password: "secret1", Nickname: "Alice"})
	require.NoError(t, err)

	require.NoError(t, s.SetTwoFactorSecret(u.ID, "JBSWY3DPEHPK3PXP"))
	got, ok := s.GetByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", got.TwoFactorSecret)

	require.NoError(t, s.Delete(u.ID))
	_, ok = s.Get(u.ID)
	assert.False(t, ok)
}

func TestEnsureAdmin(t *testing.T) {
	s, _ := newService(t)

	seeded, err := s.EnsureAdmin("admin", "")
	require.NoError(t, err)
	assert.True(t, seeded)

	admin, ok := s.GetByUsername("admin")
	require.True(t, ok)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	seeded, err = s.EnsureAdmin("admin", "whatever")
	require.NoError(t, err)
	assert.False(t, seeded, "only an empty directory is seeded")
}

package agents

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.Open[models.Agent](filepath.Join(t.TempDir(), storage.AgentsFile), zerolog.Nop())
	require.NoError(t, err)
	return NewRegistry(store, zerolog.Nop())
}

func TestRegister(t *testing.T) {
	r := newRegistry(t)

	a, err := r.Register(RegisterRequest{Name: "web-1", IP: "10.0.0.5", Port: 2333, ServiceURL: "http://10.0.0.5:2333"})
	require.NoError(t, err)
	b, err := r.Register(RegisterRequest{Name: "web-2", ServiceURL: "http://10.0.0.6:2333"})
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Equal(t, models.AgentOnline, a.Status)
	assert.Len(t, r.List(), 2)

	_, err = r.Register(RegisterRequest{Name: "bad", ServiceURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidAgent)

	require.NoError(t, r.Delete(a.ID))
	c, err := r.Register(RegisterRequest{Name: "web-3", ServiceURL: "http://10.0.0.7:2333"})
	require.NoError(t, err)
	assert.Equal(t, 3, c.ID)
}

func TestUpdateIgnoresEmptyValues(t *testing.T) {
	r := newRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "web-1", IP: "10.0.0.5", Port: 2333, ServiceURL: "http://10.0.0.5:2333", OS: "linux"})
	require.NoError(t, err)

	updated, err := r.Update(a.ID, UpdateRequest{Name: "web-primary", OS: ""})
	require.NoError(t, err)
	assert.Equal(t, "web-primary", updated.Name)
	assert.Equal(t, "linux", updated.OS)
	assert.Equal(t, 2333, updated.Port)
	assert.Equal(t, "http://10.0.0.5:2333", updated.ServiceURL)

	_, err = r.Update(99, UpdateRequest{Name: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "web-primary", got.Name)
}

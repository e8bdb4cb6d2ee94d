package registry

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
	store, err := storage.Open[models.Project](filepath.Join(t.TempDir(), storage.ProjectsFile), zerolog.Nop())
	require.NoError(t, err)
	return New(store, zerolog.Nop())
}

func javaRequest(code string) AddRequest {
	return AddRequest{
		ProjectCode:          code,
		ProjectName:          "Orders",
		ProjectGroup:         "backend",
		HostProjectPath:      "/srv/" + code,
		ContainerProjectPath: "/data/" + code,
		DockerImageName:      "orders",
		DockerImageTag:       "1.0",
		ExternalPort:         8080,
		InternalPort:         80,
		Network:              "bridge",
		JDKVersion:           17,
	}
}

func TestAddJava(t *testing.T) {
	r := newRegistry(t)

	p, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)
	assert.Len(t, p.ID, 8)
	assert.Equal(t, StatusCreated, p.Status)
	assert.Equal(t, "orders:1.0", p.ImageRef())
	require.NotNil(t, p.JavaRuntime)
	assert.Equal(t, 17, p.JDKVersion)
	assert.Nil(t, p.PythonRuntime)
	assert.Nil(t, p.WebSpec)
	assert.Equal(t, "8080:80/tcp", PortSpec(&p))

	got, ok := r.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ProjectCode, got.ProjectCode)
	assert.Equal(t, 17, got.JDKVersion)
}

func TestAddWebIgnoresContainerFields(t *testing.T) {
	r := newRegistry(t)

	p, err := r.Add(models.ProjectWeb, AddRequest{
		ProjectCode:          "site",
		ProjectName:          "Site",
		HostProjectPath:      "/srv/site",
		ContainerProjectPath: "/data/site",
		DockerImageName:      "ignored",
		AccessURL:            "https://site.example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, p.ContainerSpec)
	assert.Equal(t, "", p.ImageRef())
	require.NotNil(t, p.WebSpec)
	assert.Equal(t, "https://site.example.com", p.AccessURL)
}

func TestAddValidation(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name   string
		kind   models.ProjectType
		mutate func(*AddRequest)
	}{
		{"missing code", models.ProjectJava, func(a *AddRequest) { a.ProjectCode = "" }},
		{"missing image tag", models.ProjectJava, func(a *AddRequest) { a.DockerImageTag = "" }},
		{"port out of range", models.ProjectJava, func(a *AddRequest) { a.ExternalPort = 70000 }},
		{"missing jdk", models.ProjectJava, func(a *AddRequest) { a.JDKVersion = 0 }},
		{"missing python version", models.ProjectPython, func(*AddRequest) {}},
		{"unknown type", models.ProjectType("Go"), func(*AddRequest) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := javaRequest("x")
			tt.mutate(&req)
			_, err := r.Add(tt.kind, req)
			assert.ErrorIs(t, err, ErrInvalidProject)
		})
	}
	assert.Empty(t, r.List())
}

func TestProjectCodeIsUnique(t *testing.T) {
	r := newRegistry(t)

	_, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)
	_, err = r.Add(models.ProjectJava, javaRequest("orders"))
	assert.ErrorIs(t, err, ErrDuplicateCode)

	other, err := r.Add(models.ProjectJava, javaRequest("billing"))
	require.NoError(t, err)

	code := "orders"
	_, err = r.Update(models.ProjectJava, other.ID, UpdateRequest{ProjectCode: &code})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	same := "billing"
	_, err = r.Update(models.ProjectJava, other.ID, UpdateRequest{ProjectCode: &same})
	assert.NoError(t, err, "keeping its own code is not a conflict")
}

func TestUpdateIsPartial(t *testing.T) {
	r := newRegistry(t)
	p, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)

	tag, port := "2.0", 9090
	updated, err := r.Update(models.ProjectJava, p.ID, UpdateRequest{DockerImageTag: &tag, ExternalPort: &port})
	require.NoError(t, err)

	assert.Equal(t, "orders:2.0", updated.ImageRef())
	assert.Equal(t, 9090, updated.ExternalPort)
	assert.Equal(t, 80, updated.InternalPort)
	assert.Equal(t, "Orders", updated.ProjectName)
	assert.Equal(t, p.ID, updated.ID)
	assert.NotNil(t, updated.UpdatedAt)

	stored, _ := r.Get(p.ID)
	assert.Equal(t, "2.0", stored.DockerImageTag)
}

func TestUpdateErrors(t *testing.T) {
	r := newRegistry(t)
	p, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)

	name := "x"
	_, err = r.Update(models.ProjectJava, "missing", UpdateRequest{ProjectName: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = r.Update(models.ProjectWeb, p.ID, UpdateRequest{ProjectName: &name})
	assert.ErrorIs(t, err, ErrWrongType)

	bad := 0
	_, err = r.Update(models.ProjectJava, p.ID, UpdateRequest{InternalPort: &bad})
	assert.ErrorIs(t, err, ErrInvalidProject)

	stored, _ := r.Get(p.ID)
	assert.Equal(t, "Orders", stored.ProjectName)
}

func TestMarkDeployed(t *testing.T) {
	r := newRegistry(t)
	java, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)
	web, err := r.Add(models.ProjectWeb, AddRequest{
		ProjectCode: "site", ProjectName: "Site", HostProjectPath: "/srv/site", ContainerProjectPath: "/data/site",
	})
	require.NoError(t, err)

	require.NoError(t, r.MarkDeployed(java.ID))
	require.NoError(t, r.MarkDeployed(web.ID))
	assert.ErrorIs(t, r.MarkDeployed("missing"), storage.ErrNotFound)

	gotJava, _ := r.Get(java.ID)
	assert.Equal(t, StatusRunning, gotJava.Status)
	assert.NotNil(t, gotJava.LastDeployedAt)

	gotWeb, _ := r.Get(web.ID)
	assert.Equal(t, StatusCreated, gotWeb.Status)
	assert.NotNil(t, gotWeb.LastDeployedAt)
}

func TestListings(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)
	_, err = r.Add(models.ProjectJava, javaRequest("billing"))
	require.NoError(t, err)

	assert.Len(t, r.List(), 2)
	assert.Len(t, r.ListByType(models.ProjectJava), 2)
	assert.Empty(t, r.ListByType(models.ProjectWeb))

	assert.Len(t, r.ListPermitted(nil), 2)
	assert.Len(t, r.ListPermitted(&models.UserProfile{}), 2)
	visible := r.ListPermitted(&models.UserProfile{Permissions: []string{"billing"}})
	require.Len(t, visible, 1)
	assert.Equal(t, "billing", visible[0].ProjectCode)
	assert.Empty(t, r.ListPermitted(&models.UserProfile{Permissions: []string{}}))
}

func TestGetTypedAndDelete(t *testing.T) {
	r := newRegistry(t)
	p, err := r.Add(models.ProjectJava, javaRequest("orders"))
	require.NoError(t, err)

	_, err = r.GetTyped(models.ProjectJava, p.ID)
	assert.NoError(t, err)
	_, err = r.GetTyped(models.ProjectPython, p.ID)
	assert.ErrorIs(t, err, ErrWrongType)

	require.NoError(t, r.Delete(p.ID))
	_, err = r.GetTyped(models.ProjectJava, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/deployhub/internal/dockerx"
	"evalgo.org/deployhub/internal/ledger"
	"evalgo.org/deployhub/internal/registry"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

type fakeEngine struct {
	mu sync.Mutex

	containerExists bool
	imageExists     bool
	lookupErr       error
	removeErr       error
	buildErr        error
	runErr          error
	buildGate       chan struct{}

	removedContainers []string
	removedImages     []string
	builds            []string
	commands          []string
	buildDockerfile   string
}

func (f *fakeEngine) ContainerExists(context.Context, string) (bool, error) {
	return f.containerExists, f.lookupErr
}

func (f *fakeEngine) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedContainers = append(f.removedContainers, name)
	return f.removeErr
}

func (f *fakeEngine) ImageExists(context.Context, string) (bool, error) {
	return f.imageExists, f.lookupErr
}

func (f *fakeEngine) RemoveImage(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedImages = append(f.removedImages, ref)
	return f.removeErr
}

func (f *fakeEngine) BuildImage(_ context.Context, dir, ref string) error {
	if f.buildGate != nil {
		<-f.buildGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, ref)
	if data, err := os.ReadFile(filepath.Join(dir, "Dockerfile")); err == nil {
		f.buildDockerfile = string(data)
	}
	return f.buildErr
}

func (f *fakeEngine) RunShell(_ context.Context, _ string, command string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil, f.runErr
}

func (f *fakeEngine) ContainerState(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeEngine) Containers(context.Context) ([]dockerx.ContainerSummary, error) { return nil, nil }

func (f *fakeEngine) Images(context.Context) ([]dockerx.ImageSummary, error) { return nil, nil }

func (f *fakeEngine) Version(context.Context) (string, error) { return "28.0.0", nil }

func (f *fakeEngine) Info(context.Context) (*dockerx.EngineInfo, error) {
	return &dockerx.EngineInfo{}, nil
}

type fixture struct {
	pipeline *Pipeline
	engine   *fakeEngine
	registry *registry.Registry
	ledger   *ledger.Ledger
	history  *storage.Store[models.DeployHistory]
	metrics  *Metrics
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	projects, err := storage.Open[models.Project](filepath.Join(dir, "data", storage.ProjectsFile), zerolog.Nop())
	require.NoError(t, err)
	history, err := storage.Open[models.DeployHistory](filepath.Join(dir, "data", storage.DeployHistoryFile), zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{
		engine:   &fakeEngine{},
		registry: registry.New(projects, zerolog.Nop()),
		ledger:   ledger.New(history, projects, zerolog.Nop()),
		history:  history,
		metrics:  NewMetrics(prometheus.NewRegistry()),
		dir:      dir,
	}
	f.pipeline = New(Deps{
		Projects: f.registry,
		Ledger:   f.ledger,
		Engine:   f.engine,
		Metrics:  f.metrics,
		Logger:   zerolog.Nop(),
	})
	return f
}

func (f *fixture) addProject(t *testing.T, kind models.ProjectType, code string) models.Project {
	t.Helper()
	req := registry.AddRequest{
		ProjectCode:          code,
		ProjectName:          strings.ToUpper(code),
		HostProjectPath:      "/srv/" + code,
		ContainerProjectPath: filepath.Join(f.dir, "projects", code),
		DockerImageName:      code,
		DockerImageTag:       "1.0",
		ExternalPort:         8080,
		InternalPort:         8080,
		JDKVersion:           17,
		PythonVersion:        "3.12",
	}
	p, err := f.registry.Add(kind, req)
	require.NoError(t, err)
	return p
}

func zipOf(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return bytes.NewReader(buf.Bytes())
}

const runCommand = "docker run \\\n  -d --name orders orders:1.0"

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "docker run   -d --name x image", NormalizeCommand("docker run \\\n  -d --name x image"))
	assert.Equal(t, "docker run  -d image", NormalizeCommand("  docker run \\  \r\n-d image\n"))
	assert.Equal(t, "echo a\\b", NormalizeCommand("echo a\\b"))
}

func TestJavaDeploySuccess(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectJava, "orders")
	before := time.Now()

	res, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID:  p.ID,
		Kind:       models.ProjectJava,
		Artifact:   strings.NewReader("jar-bytes"),
		Dockerfile: "FROM eclipse-temurin:17\n",
		Command:    runCommand,
		Operator:   &models.UserProfile{ID: 3, Nickname: "Ops"},
	})
	require.NoError(t, err)
	assert.Len(t, res.HistoryID, 8)
	assert.Contains(t, res.Message, "orders:1.0")
	assert.Empty(t, res.Warnings)

	jar, err := os.ReadFile(filepath.Join(p.ContainerProjectPath, "jars", "orders.jar"))
	require.NoError(t, err)
	assert.Equal(t, "jar-bytes", string(jar))
	assert.DirExists(t, filepath.Join(p.ContainerProjectPath, "logs"))
	assert.Equal(t, "FROM eclipse-temurin:17\n", f.engine.buildDockerfile)
	assert.Equal(t, []string{"orders:1.0"}, f.engine.builds)
	assert.Equal(t, []string{"docker run   -d --name orders orders:1.0"}, f.engine.commands)

	rows := f.history.List()
	require.Len(t, rows, 1)
	assert.Equal(t, res.HistoryID, rows[0].ID)
	assert.Equal(t, models.StatusSuccess, rows[0].Status)
	assert.Nil(t, rows[0].FailedReason)
	assert.Equal(t, "Ops", *rows[0].OperatorName)

	stored, _ := f.registry.Get(p.ID)
	assert.Equal(t, registry.StatusRunning, stored.Status)
	require.NotNil(t, stored.LastDeployedAt)
	assert.False(t, stored.LastDeployedAt.Before(before))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deploys.WithLabelValues("Java", "SUCCESS")))
}

func TestJavaBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.buildErr = errors.New("pull access denied")
	p := f.addProject(t, models.ProjectJava, "orders")

	res, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID:  p.ID,
		Artifact:   strings.NewReader("jar"),
		Dockerfile: "FROM scratch",
		Command:    runCommand,
	})
	require.Error(t, err)
	assert.Nil(t, res)

	var derr *DeployError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, stepBuild, derr.Step)
	assert.Contains(t, err.Error(), "pull access denied")
	assert.True(t, strings.HasPrefix(err.Error(), "5 - ERROR - image build failed: orders:1.0"))
	assert.Empty(t, f.engine.commands, "run is skipped after a failed build")

	rows := f.history.List()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].FailedReason)
	assert.Equal(t, err.Error(), *rows[0].FailedReason)

	stored, _ := f.registry.Get(p.ID)
	assert.Equal(t, registry.StatusCreated, stored.Status)
	assert.Nil(t, stored.LastDeployedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.deploys.WithLabelValues("Java", "FAILED")))
}

func TestRunFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.runErr = errors.New("exit status 125: port is already allocated")
	p := f.addProject(t, models.ProjectJava, "orders")

	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID, Artifact: strings.NewReader("jar"), Dockerfile: "FROM scratch", Command: runCommand,
	})
	var derr *DeployError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, stepRun, derr.Step)
	assert.Contains(t, err.Error(), "port is already allocated")

	rows := f.history.List()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
}

func TestCleanupProblemsAreWarnings(t *testing.T) {
	f := newFixture(t)
	f.engine.containerExists = true
	f.engine.imageExists = true
	f.engine.removeErr = errors.New("conflict")
	p := f.addProject(t, models.ProjectJava, "orders")

	res, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID, Artifact: strings.NewReader("jar"), Dockerfile: "FROM scratch", Command: runCommand,
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "container removal failed: orders")
	assert.Contains(t, res.Warnings[1], "image removal failed: orders:1.0")
	assert.Equal(t, []string{"orders"}, f.engine.removedContainers)
	assert.Equal(t, []string{"orders:1.0"}, f.engine.removedImages)

	f.engine.removeErr = nil
	f.engine.lookupErr = errors.New("daemon unavailable")
	res, err = f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID, Artifact: strings.NewReader("jar"), Dockerfile: "FROM scratch", Command: runCommand,
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 2)
}

func TestJavaRequiresDockerfile(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectJava, "orders")

	_, err := f.pipeline.Deploy(context.Background(), Request{ProjectID: p.ID, Artifact: strings.NewReader("jar"), Command: runCommand})
	assert.ErrorIs(t, err, ErrNoDockerfile)
	assert.Empty(t, f.engine.builds)
}

func TestPythonUsesArchiveDockerfile(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectPython, "svc")

	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID,
		Artifact: zipOf(t, map[string]string{
			"Dockerfile":  "FROM python:3.12\n",
			"main.py":     "print('hi')\n",
			"pkg/util.py": "",
		}),
		Dockerfile: "FROM ignored",
		Command:    "docker run -d --name svc svc:1.0",
	})
	require.NoError(t, err)

	assert.Equal(t, "FROM python:3.12\n", f.engine.buildDockerfile)
	assert.FileExists(t, filepath.Join(p.ContainerProjectPath, "main.py"))
	assert.FileExists(t, filepath.Join(p.ContainerProjectPath, "pkg", "util.py"))
	assert.NoFileExists(t, filepath.Join(p.ContainerProjectPath, "app", "project.zip"))
	assert.DirExists(t, filepath.Join(p.ContainerProjectPath, "app"))
}

func TestPythonFallsBackToSuppliedDockerfile(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectPython, "svc")

	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID:  p.ID,
		Artifact:   zipOf(t, map[string]string{"main.py": ""}),
		Dockerfile: "FROM python:3.11\n",
		Command:    "docker run -d svc:1.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "FROM python:3.11\n", f.engine.buildDockerfile)
}

func TestPythonWithoutAnyDockerfileFails(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectPython, "svc")

	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID,
		Artifact:  zipOf(t, map[string]string{"main.py": ""}),
		Command:   "docker run -d svc:1.0",
	})
	assert.ErrorIs(t, err, ErrNoDockerfile)

	rows := f.history.List()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
}

func TestWebDeploy(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectWeb, "p1")
	require.NoError(t, os.MkdirAll(p.ContainerProjectPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.ContainerProjectPath, "keep.txt"), []byte("x"), 0o644))
	before := time.Now()

	res, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID,
		Artifact:  zipOf(t, map[string]string{"index.html": "<html></html>", "assets/app.js": ""}),
	})
	require.NoError(t, err)
	assert.Equal(t, "project P1 deployed to "+p.ContainerProjectPath, res.Message)

	assert.FileExists(t, filepath.Join(p.ContainerProjectPath, "index.html"))
	assert.FileExists(t, filepath.Join(p.ContainerProjectPath, "assets", "app.js"))
	assert.FileExists(t, filepath.Join(p.ContainerProjectPath, "keep.txt"), "staging never wipes")
	assert.NoFileExists(t, filepath.Join(p.ContainerProjectPath, "p1.zip"))
	assert.Empty(t, f.engine.builds)

	stored, _ := f.registry.Get(p.ID)
	require.NotNil(t, stored.LastDeployedAt)
	assert.False(t, stored.LastDeployedAt.Before(before))
	assert.Equal(t, registry.StatusCreated, stored.Status)

	rows := f.history.List()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusSuccess, rows[0].Status)

	// redeploying over the same directory overwrites in place
	_, err = f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID,
		Artifact:  zipOf(t, map[string]string{"index.html": "v2"}),
	})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(p.ContainerProjectPath, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Len(t, f.history.List(), 2)
}

func TestZipSlipIsRejected(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectWeb, "site")

	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: p.ID,
		Artifact:  zipOf(t, map[string]string{"../evil.txt": "x"}),
	})
	var derr *DeployError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, stepArtifact, derr.Step)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(p.ContainerProjectPath), "evil.txt"))
}

func TestUnknownProjectLeavesNoHistory(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Deploy(context.Background(), Request{ProjectID: "missing", Artifact: strings.NewReader("x")})
	var nf *ProjectNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
	assert.Empty(t, f.history.List())
}

func TestWrongKindIsRejected(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectWeb, "site")

	_, err := f.pipeline.Deploy(context.Background(), Request{ProjectID: p.ID, Kind: models.ProjectJava})
	assert.ErrorIs(t, err, ErrWrongType)
	assert.Empty(t, f.history.List())
}

func TestMissingArtifact(t *testing.T) {
	f := newFixture(t)
	p := f.addProject(t, models.ProjectWeb, "site")

	_, err := f.pipeline.Deploy(context.Background(), Request{ProjectID: p.ID})
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestOneDeployPerProject(t *testing.T) {
	f := newFixture(t)
	f.engine.buildGate = make(chan struct{})
	p := f.addProject(t, models.ProjectJava, "orders")
	other := f.addProject(t, models.ProjectJava, "billing")

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Deploy(context.Background(), Request{
			ProjectID: p.ID, Artifact: strings.NewReader("jar"), Dockerfile: "FROM scratch", Command: runCommand,
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := f.pipeline.Deploy(context.Background(), Request{ProjectID: p.ID})
		return errors.Is(err, ErrDeployInProgress)
	}, 2*time.Second, 10*time.Millisecond)

	// other projects are not blocked by the lock; release the gate for them too
	go func() {
		for i := 0; i < 2; i++ {
			f.engine.buildGate <- struct{}{}
		}
	}()
	_, err := f.pipeline.Deploy(context.Background(), Request{
		ProjectID: other.ID, Artifact: strings.NewReader("jar"), Dockerfile: "FROM scratch", Command: runCommand,
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

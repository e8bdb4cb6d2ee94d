package dockerx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/moby/go-archive"
)

// Client implements Engine with the Docker SDK.
type Client struct {
	inner *client.Client
}

var _ Engine = (*Client)(nil)

// New creates a client from the environment. A non-empty host overrides DOCKER_HOST.
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		if !strings.Contains(host, "://") {
			host = "unix://" + host
		}
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Ping checks connectivity to the daemon.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.inner.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.inner.Close()
}

func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := c.inner.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", name, err)
	}
	return true, nil
}

// RemoveContainer force-removes a container. A missing container is not an error.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := c.inner.ImageInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %s: %w", ref, err)
	}
	return true, nil
}

// RemoveImage force-removes an image. A missing image is not an error.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.inner.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

func (c *Client) BuildImage(ctx context.Context, contextDir, ref string) error {
	if contextDir == "" {
		return fmt.Errorf("build directory cannot be empty")
	}
	if ref == "" {
		return fmt.Errorf("image tag cannot be empty")
	}

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := c.inner.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("docker image build: %w", err)
	}
	defer resp.Body.Close()

	return readBuildOutput(resp.Body)
}

// readBuildOutput drains the daemon's JSON message stream and returns the
// first reported error.
func readBuildOutput(r io.Reader) error {
	decoder := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if e := msg.errorMessage(); e != "" {
			return errors.New(e)
		}
	}
}

type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func (m buildMessage) errorMessage() string {
	if s := strings.TrimSpace(m.ErrorDetail.Message); s != "" {
		return s
	}
	return strings.TrimSpace(m.Error)
}

func (c *Client) RunShell(ctx context.Context, dir, command string) ([]byte, error) {
	return runShell(ctx, dir, command)
}

func runShell(ctx context.Context, dir, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

func (c *Client) ContainerState(ctx context.Context, name string) (string, bool, error) {
	inspect, err := c.inner.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("inspect container %s: %w", name, err)
	}
	if inspect.State == nil {
		return "", true, nil
	}
	return string(inspect.State.Status), true, nil
}

func (c *Client) Containers(ctx context.Context) ([]ContainerSummary, error) {
	list, err := c.inner.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]ContainerSummary, 0, len(list))
	for _, ct := range list {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		ports := make([]string, 0, len(ct.Ports))
		for _, p := range ct.Ports {
			if p.PublicPort != 0 {
				ports = append(ports, fmt.Sprintf("%d:%d/%s", p.PublicPort, p.PrivatePort, p.Type))
			} else {
				ports = append(ports, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
			}
		}
		out = append(out, ContainerSummary{
			ID:      shortID(ct.ID),
			Name:    name,
			Image:   ct.Image,
			State:   string(ct.State),
			Status:  ct.Status,
			Ports:   ports,
			Created: time.Unix(ct.Created, 0),
		})
	}
	return out, nil
}

func (c *Client) Images(ctx context.Context) ([]ImageSummary, error) {
	list, err := c.inner.ImageList(ctx, image.ListOptions{All: false})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	out := make([]ImageSummary, 0, len(list))
	for _, img := range list {
		out = append(out, ImageSummary{
			ID:         shortID(strings.TrimPrefix(img.ID, "sha256:")),
			Tags:       img.RepoTags,
			Size:       img.Size,
			Containers: img.Containers,
			Created:    time.Unix(img.Created, 0),
		})
	}
	return out, nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.inner.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("docker version: %w", err)
	}
	return v.Version, nil
}

func (c *Client) Info(ctx context.Context) (*EngineInfo, error) {
	info, err := c.inner.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker info: %w", err)
	}
	return &EngineInfo{
		Name:              info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		OSType:            info.OSType,
		Architecture:      info.Architecture,
		KernelVersion:     info.KernelVersion,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
	}, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

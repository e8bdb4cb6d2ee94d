// Package dockerx adapts the Docker engine API to the operations the
// deployment pipeline and the agent inspection routes need.
package dockerx

import (
	"context"
	"time"
)

// Engine is the subset of Docker the agent depends on.
type Engine interface {
	ContainerExists(ctx context.Context, name string) (bool, error)
	RemoveContainer(ctx context.Context, name string) error
	ImageExists(ctx context.Context, ref string) (bool, error)
	RemoveImage(ctx context.Context, ref string) error

	// BuildImage builds ref from the Dockerfile at the root of contextDir.
	BuildImage(ctx context.Context, contextDir, ref string) error

	// RunShell runs command with "sh -c" in dir and returns its combined output.
	RunShell(ctx context.Context, dir, command string) ([]byte, error)

	ContainerState(ctx context.Context, name string) (state string, found bool, err error)
	Containers(ctx context.Context) ([]ContainerSummary, error)
	Images(ctx context.Context) ([]ImageSummary, error)
	Version(ctx context.Context) (string, error)
	Info(ctx context.Context) (*EngineInfo, error)
}

// ContainerSummary is one row of the container listing.
type ContainerSummary struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Image   string    `json:"image"`
	State   string    `json:"state"`
	Status  string    `json:"status"`
	Ports   []string  `json:"ports"`
	Created time.Time `json:"created"`
}

// ImageSummary is one row of the image listing.
type ImageSummary struct {
	ID         string    `json:"id"`
	Tags       []string  `json:"tags"`
	Size       int64     `json:"size"`
	Containers int64     `json:"containers"`
	Created    time.Time `json:"created"`
}

// EngineInfo describes the Docker daemon of the host.
type EngineInfo struct {
	Name              string `json:"name"`
	ServerVersion     string `json:"server_version"`
	OperatingSystem   string `json:"operating_system"`
	OSType            string `json:"os_type"`
	Architecture      string `json:"architecture"`
	KernelVersion     string `json:"kernel_version"`
	NCPU              int    `json:"ncpu"`
	MemTotal          int64  `json:"mem_total"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containers_running"`
	ContainersPaused  int    `json:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped"`
	Images            int    `json:"images"`
}

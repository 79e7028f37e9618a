// Package docker implements resource handlers backed by a local Docker
// daemon. It is the provider of choice for trying the engine end to end
// without cloud credentials.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stackform-io/stackform/internal/provider"
)

// Provider shares one Docker client across all handlers, created lazily so
// commands that never reach the daemon need no socket.
type Provider struct {
	mu  sync.Mutex
	cli *client.Client
}

func New() *Provider {
	return &Provider{}
}

// Register installs every handler this package implements.
func Register(reg *provider.Registry, p *Provider) error {
	handlers := map[string]provider.Handler{
		"docker_image":     &imageHandler{p: p},
		"docker_network":   &networkHandler{p: p},
		"docker_volume":    &volumeHandler{p: p},
		"docker_container": &containerHandler{p: p},
	}
	for kind, h := range handlers {
		if err := reg.Register(kind, h); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) docker() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		return p.cli, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to create Docker client: %w", err))
	}
	p.cli = cli
	return p.cli, nil
}

// wrap maps daemon errors onto the engine's error classes.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		return provider.NotFound(err)
	}
	if client.IsErrConnectionFailed(err) {
		return provider.Transient(err)
	}
	return provider.Permanent(err)
}

// decode maps a loosely typed attribute tree onto a handler's config struct.
func decode(attrs map[string]any, dst any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return provider.Permanent(fmt.Errorf("encoding attributes: %w", err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return provider.Permanent(fmt.Errorf("decoding attributes: %w", err))
	}
	return nil
}

type containerConfig struct {
	Image      string            `json:"image"`
	Name       string            `json:"name"`
	Command    []string          `json:"command,omitempty"`
	Ports      map[string]int    `json:"ports,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Networks   []string          `json:"networks,omitempty"`
	Volumes    []string          `json:"volumes,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
	User       string            `json:"user,omitempty"`
	Restart    string            `json:"restart,omitempty"`

	Healthcheck *healthcheckConfig `json:"healthcheck,omitempty"`
	Logging     *loggingConfig     `json:"logging,omitempty"`
}

type healthcheckConfig struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval"`
	Timeout     string   `json:"timeout"`
	StartPeriod string   `json:"startPeriod"`
	Retries     int      `json:"retries"`
}

type loggingConfig struct {
	Driver  string            `json:"driver"`
	Options map[string]string `json:"options"`
}

type containerHandler struct {
	p *Provider
}

func (h *containerHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable: []string{"labels", "restart"},
		ForcesReplacement: []string{
			"image", "name", "command", "ports", "env", "networks",
			"volumes", "workingDir", "user", "healthcheck", "logging",
		},
	}
}

func (h *containerHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg containerConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	cli, err := h.p.docker()
	if err != nil {
		return "", nil, err
	}

	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return "", nil, wrap(fmt.Errorf("failed to pull image %s: %w", cfg.Image, err))
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range cfg.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	var binds []string
	for _, v := range cfg.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(cfg.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(cfg.Networks[0])
	}
	if cfg.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(cfg.Restart),
		}
	}
	if cfg.Logging != nil {
		hostConfig.LogConfig = container.LogConfig{
			Type:   cfg.Logging.Driver,
			Config: cfg.Logging.Options,
		}
	}

	config := &container.Config{
		Image:      cfg.Image,
		Cmd:        cfg.Command,
		Env:        mapToEnvList(cfg.Env),
		Labels:     cfg.Labels,
		WorkingDir: cfg.WorkingDir,
		User:       cfg.User,
	}
	if cfg.Healthcheck != nil {
		test := cfg.Healthcheck.Test
		if len(test) == 0 {
			test = []string{"NONE"}
		}
		interval, _ := time.ParseDuration(cfg.Healthcheck.Interval)
		timeout, _ := time.ParseDuration(cfg.Healthcheck.Timeout)
		startPeriod, _ := time.ParseDuration(cfg.Healthcheck.StartPeriod)
		config.Healthcheck = &container.HealthConfig{
			Test:        test,
			Interval:    interval,
			Timeout:     timeout,
			StartPeriod: startPeriod,
			Retries:     cfg.Healthcheck.Retries,
		}
	}

	resp, err := cli.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, cfg.Name)
	if err != nil {
		return "", nil, wrap(fmt.Errorf("failed to create container: %w", err))
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", nil, wrap(fmt.Errorf("failed to start container: %w", err))
	}

	return resp.ID, map[string]any{
		"id":    resp.ID,
		"name":  cfg.Name,
		"image": cfg.Image,
	}, nil
}

func (h *containerHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	cli, err := h.p.docker()
	if err != nil {
		return nil, err
	}
	inspect, err := cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	return map[string]any{
		"image":  inspect.Config.Image,
		"name":   strings.TrimPrefix(inspect.Name, "/"),
		"labels": inspect.Config.Labels,
	}, nil
}

func (h *containerHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg containerConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	cli, err := h.p.docker()
	if err != nil {
		return nil, err
	}
	if cfg.Restart != "" {
		_, err := cli.ContainerUpdate(ctx, id, container.UpdateConfig{
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(cfg.Restart)},
		})
		if err != nil {
			return nil, wrap(fmt.Errorf("failed to update container: %w", err))
		}
	}
	return map[string]any{"id": id, "name": cfg.Name, "image": cfg.Image}, nil
}

func (h *containerHandler) Delete(ctx context.Context, id string) error {
	cli, err := h.p.docker()
	if err != nil {
		return err
	}
	stopTimeout := 10 // seconds
	_ = cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &stopTimeout})
	if err := cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return wrap(fmt.Errorf("failed to remove container: %w", err))
	}
	return nil
}

type networkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver,omitempty"`
	Internal bool              `json:"internal,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type networkHandler struct {
	p *Provider
}

func (h *networkHandler) Schema() provider.Schema {
	return provider.Schema{
		ForcesReplacement: []string{"name", "driver", "internal", "labels"},
	}
}

func (h *networkHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg networkConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	cli, err := h.p.docker()
	if err != nil {
		return "", nil, err
	}
	resp, err := cli.NetworkCreate(ctx, cfg.Name, network.CreateOptions{
		Driver:   cfg.Driver,
		Internal: cfg.Internal,
		Labels:   cfg.Labels,
	})
	if err != nil {
		return "", nil, wrap(fmt.Errorf("failed to create network: %w", err))
	}
	return resp.ID, map[string]any{"id": resp.ID, "name": cfg.Name}, nil
}

func (h *networkHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	cli, err := h.p.docker()
	if err != nil {
		return nil, err
	}
	inspect, err := cli.NetworkInspect(ctx, id, network.InspectOptions{})
	if err != nil {
		return nil, wrap(err)
	}
	return map[string]any{
		"name":     inspect.Name,
		"driver":   inspect.Driver,
		"internal": inspect.Internal,
		"labels":   inspect.Labels,
	}, nil
}

func (h *networkHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	// Docker networks have no mutable attributes; the schema forces
	// replacement for every field.
	return nil, provider.Permanent(fmt.Errorf("docker networks cannot be updated in place"))
}

func (h *networkHandler) Delete(ctx context.Context, id string) error {
	cli, err := h.p.docker()
	if err != nil {
		return err
	}
	if err := cli.NetworkRemove(ctx, id); err != nil {
		return wrap(fmt.Errorf("failed to remove network: %w", err))
	}
	return nil
}

type volumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver,omitempty"`
}

type volumeHandler struct {
	p *Provider
}

func (h *volumeHandler) Schema() provider.Schema {
	return provider.Schema{
		ForcesReplacement: []string{"name", "driver"},
	}
}

func (h *volumeHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg volumeConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	cli, err := h.p.docker()
	if err != nil {
		return "", nil, err
	}
	vol, err := cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   cfg.Name,
		Driver: cfg.Driver,
	})
	if err != nil {
		return "", nil, wrap(fmt.Errorf("failed to create volume: %w", err))
	}
	return vol.Name, map[string]any{
		"id":         vol.Name,
		"name":       vol.Name,
		"mountpoint": vol.Mountpoint,
	}, nil
}

func (h *volumeHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	cli, err := h.p.docker()
	if err != nil {
		return nil, err
	}
	vol, err := cli.VolumeInspect(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	return map[string]any{
		"name":   vol.Name,
		"driver": vol.Driver,
	}, nil
}

func (h *volumeHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	return nil, provider.Permanent(fmt.Errorf("docker volumes cannot be updated in place"))
}

func (h *volumeHandler) Delete(ctx context.Context, id string) error {
	cli, err := h.p.docker()
	if err != nil {
		return err
	}
	if err := cli.VolumeRemove(ctx, id, true); err != nil {
		return wrap(fmt.Errorf("failed to remove volume: %w", err))
	}
	return nil
}

type imageConfig struct {
	Name         string `json:"name"`
	BuildContext string `json:"buildContext,omitempty"`
	Dockerfile   string `json:"dockerfile,omitempty"`
}

type imageHandler struct {
	p *Provider
}

func (h *imageHandler) Schema() provider.Schema {
	return provider.Schema{
		ForcesReplacement: []string{"name", "buildContext", "dockerfile"},
	}
}

func (h *imageHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg imageConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	cli, err := h.p.docker()
	if err != nil {
		return "", nil, err
	}

	if cfg.BuildContext != "" {
		tar, err := buildContextTar(cfg.BuildContext)
		if err != nil {
			return "", nil, provider.Permanent(err)
		}
		resp, err := cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Tags:       []string{cfg.Name},
			Dockerfile: cfg.Dockerfile,
			Remove:     true,
		})
		if err != nil {
			return "", nil, wrap(fmt.Errorf("failed to build image: %w", err))
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		reader, err := cli.ImagePull(ctx, cfg.Name, image.PullOptions{})
		if err != nil {
			return "", nil, wrap(fmt.Errorf("failed to pull image: %w", err))
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	inspect, _, err := cli.ImageInspectWithRaw(ctx, cfg.Name)
	if err != nil {
		return "", nil, wrap(fmt.Errorf("failed to inspect image: %w", err))
	}
	return inspect.ID, map[string]any{"id": inspect.ID, "name": cfg.Name}, nil
}

func (h *imageHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	cli, err := h.p.docker()
	if err != nil {
		return nil, err
	}
	inspect, _, err := cli.ImageInspectWithRaw(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	observed := map[string]any{"id": inspect.ID}
	if len(inspect.RepoTags) > 0 {
		observed["name"] = inspect.RepoTags[0]
	}
	return observed, nil
}

func (h *imageHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	return nil, provider.Permanent(fmt.Errorf("docker images cannot be updated in place"))
}

func (h *imageHandler) Delete(ctx context.Context, id string) error {
	cli, err := h.p.docker()
	if err != nil {
		return err
	}
	if _, err := cli.ImageRemove(ctx, id, image.RemoveOptions{Force: true}); err != nil {
		return wrap(fmt.Errorf("failed to remove image: %w", err))
	}
	return nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func buildContextTar(dir string) (io.ReadCloser, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build context: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("build context %s: %w", dir, err)
	}
	tar, err := archive.TarWithOptions(abs, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context tar: %w", err)
	}
	return tar, nil
}

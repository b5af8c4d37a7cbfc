//go:build integration

package containers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/wait"
)

const ntfyPort = "80/tcp"

// NtfyContainer wraps an ntfy push server used as a shoutrrr delivery target.
type NtfyContainer struct {
	container   testcontainers.Container
	hostPort    string
	authEnabled bool
	http        *resty.Client
}

// NtfyConfig holds configuration for ntfy container creation.
type NtfyConfig struct {
	// ImageTag for binwiederhier/ntfy (default: "latest")
	ImageTag string
	// EnableAuth denies anonymous access; use AddUser and GrantAccess.
	EnableAuth bool
}

// DefaultNtfyConfig returns an NtfyConfig with sensible defaults.
func DefaultNtfyConfig() NtfyConfig {
	return NtfyConfig{ImageTag: "latest"}
}

// NtfyMessage is one cached message on a topic.
type NtfyMessage struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
	Title   string `json:"title"`
	Time    int64  `json:"time"`
}

// NewNtfyContainer starts an ntfy server. If config is nil, uses
// DefaultNtfyConfig().
func NewNtfyContainer(ctx context.Context, config *NtfyConfig) (*NtfyContainer, error) {
	if config == nil {
		defaultCfg := DefaultNtfyConfig()
		config = &defaultCfg
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("binwiederhier/ntfy:%s", config.ImageTag),
		ExposedPorts: []string{ntfyPort},
		Cmd:          []string{"serve", "--cache-file=/tmp/ntfy/cache.db"},
		Tmpfs:        map[string]string{"/tmp/ntfy": "rw"},
		WaitingFor:   wait.ForHTTP("/v1/health").WithPort(ntfyPort).WithStartupTimeout(30 * time.Second),
	}
	if config.EnableAuth {
		req.Env = map[string]string{
			"NTFY_AUTH_FILE":           "/tmp/ntfy/auth.db",
			"NTFY_AUTH_DEFAULT_ACCESS": "deny-all",
		}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start ntfy container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, ntfyPort)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	hostPort := net.JoinHostPort(host, strconv.Itoa(mappedPort.Int()))
	return &NtfyContainer{
		container:   container,
		hostPort:    hostPort,
		authEnabled: config.EnableAuth,
		http:        resty.New().SetBaseURL("http://" + hostPort).SetTimeout(10 * time.Second),
	}, nil
}

// GetHost returns host:port, the form shoutrrr ntfy URLs expect.
func (c *NtfyContainer) GetHost(_ context.Context) string {
	return c.hostPort
}

// AddUser creates a user with no topic access. Requires EnableAuth.
func (c *NtfyContainer) AddUser(ctx context.Context, username, password string) error {
	return c.exec(ctx, []string{"ntfy", "user", "add", username},
		tcexec.WithEnv([]string{"NTFY_PASSWORD=" + password}))
}

// GrantAccess gives username "ro", "wo" or "rw" permission on topic.
// Requires EnableAuth.
func (c *NtfyContainer) GrantAccess(ctx context.Context, username, topic, permission string) error {
	return c.exec(ctx, []string{"ntfy", "access", username, topic, permission})
}

func (c *NtfyContainer) exec(ctx context.Context, cmd []string, opts ...tcexec.ProcessOption) error {
	if !c.authEnabled {
		return fmt.Errorf("%s: authentication is not enabled", cmd[1])
	}
	exitCode, output, err := c.container.Exec(ctx, cmd, opts...)
	if err != nil {
		return fmt.Errorf("failed to exec ntfy %s: %w", cmd[1], err)
	}
	if exitCode != 0 {
		out, _ := io.ReadAll(output)
		return fmt.Errorf("ntfy %s exited with %d: %s", cmd[1], exitCode, out)
	}
	return nil
}

// PollMessages returns every cached message on topic.
func (c *NtfyContainer) PollMessages(ctx context.Context, topic string) ([]NtfyMessage, error) {
	return c.poll(c.http.R().SetContext(ctx), topic)
}

// PollMessagesWithAuth is PollMessages with Basic Auth.
func (c *NtfyContainer) PollMessagesWithAuth(ctx context.Context, topic, username, password string) ([]NtfyMessage, error) {
	return c.poll(c.http.R().SetContext(ctx).SetBasicAuth(username, password), topic)
}

func (c *NtfyContainer) poll(req *resty.Request, topic string) ([]NtfyMessage, error) {
	resp, err := req.SetQueryParam("poll", "1").Get("/" + topic + "/json")
	if err != nil {
		return nil, fmt.Errorf("failed to poll %s: %w", topic, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("poll %s failed with status %d: %s", topic, resp.StatusCode(), resp.String())
	}

	// One JSON object per line.
	var messages []NtfyMessage
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body()))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg NtfyMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("failed to parse ntfy message: %w", err)
		}
		if msg.Event != "" && msg.Event != "message" {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, scanner.Err()
}

// Terminate removes the container.
func (c *NtfyContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}

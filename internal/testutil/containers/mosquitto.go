//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	mosquittoPort       = "1883/tcp"
	mosquittoConfigPath = "/mosquitto/config/watchpost.conf"
	mqttTokenTimeout    = 5 * time.Second
)

// anonymousBrokerConfig opens the default listener to unauthenticated clients.
const anonymousBrokerConfig = `listener 1883
allow_anonymous true
persistence false
`

// MosquittoContainer wraps an Eclipse Mosquitto broker.
type MosquittoContainer struct {
	container testcontainers.Container
	brokerURL string
}

// MosquittoConfig holds configuration for Mosquitto container creation.
type MosquittoConfig struct {
	// ImageTag for eclipse-mosquitto (default: "2.0")
	ImageTag string
}

// DefaultMosquittoConfig returns a MosquittoConfig with sensible defaults.
func DefaultMosquittoConfig() MosquittoConfig {
	return MosquittoConfig{ImageTag: "2.0"}
}

// NewMosquittoContainer starts a broker that accepts anonymous clients.
// If config is nil, uses DefaultMosquittoConfig().
func NewMosquittoContainer(ctx context.Context, config *MosquittoConfig) (*MosquittoContainer, error) {
	if config == nil {
		defaultCfg := DefaultMosquittoConfig()
		config = &defaultCfg
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("eclipse-mosquitto:%s", config.ImageTag),
		ExposedPorts: []string{mosquittoPort},
		Cmd:          []string{"mosquitto", "-c", mosquittoConfigPath},
		Files: []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(anonymousBrokerConfig),
			ContainerFilePath: mosquittoConfigPath,
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForListeningPort(mosquittoPort).WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, mosquittoPort)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	mc := &MosquittoContainer{
		container: container,
		brokerURL: fmt.Sprintf("tcp://%s", net.JoinHostPort(host, strconv.Itoa(mappedPort.Int()))),
	}

	// The port can accept connections before the broker answers CONNECT.
	client, err := mc.CreateClient("watchpost-healthcheck")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	client.Disconnect(250)

	return mc, nil
}

// BrokerURL returns the tcp:// URL of the broker.
func (c *MosquittoContainer) BrokerURL() string {
	return c.brokerURL
}

// CreateClient connects a new client to the broker. The caller disconnects it.
func (c *MosquittoContainer) CreateClient(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect client %s: %w", clientID, err)
	}
	return client, nil
}

// Publish sends one QoS 1 message on topic using a short-lived client.
func (c *MosquittoContainer) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	client, err := c.CreateClient(fmt.Sprintf("watchpost-publisher-%d", time.Now().UnixNano()))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Publish(topic, 1, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttTokenTimeout):
		return fmt.Errorf("publish timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Terminate stops and removes the broker container.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}

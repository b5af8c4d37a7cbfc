//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// validTableNameRe matches valid MySQL identifier names.
var validTableNameRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// MySQLContainer wraps a MySQL instance with an admin connection used for
// health checks and table resets between tests.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	db        *sql.DB
	dsn       string
}

// MySQLConfig holds configuration for MySQL container creation.
type MySQLConfig struct {
	// Database name (default: "watchpost_test")
	Database string
	// Username for the application user (default: "watchpost")
	Username string
	// Password for the application user (default: "watchpost")
	Password string
	// ImageTag for mysql (default: "8.0")
	ImageTag string
}

// DefaultMySQLConfig returns a MySQLConfig with sensible defaults.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "watchpost_test",
		Username: "watchpost",
		Password: "watchpost",
		ImageTag: "8.0",
	}
}

// NewMySQLContainer creates and starts a MySQL container with the given config.
// If config is nil, uses DefaultMySQLConfig().
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		defaultCfg := DefaultMySQLConfig()
		config = &defaultCfg
	}

	// mysql.Run waits for the server to accept connections.
	mysqlContainer, err := mysql.Run(ctx, fmt.Sprintf("mysql:%s", config.ImageTag),
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	// Watch rule timestamps are DATETIME columns stored in UTC.
	dsn, err := mysqlContainer.ConnectionString(ctx, "charset=utf8mb4", "parseTime=true", "loc=UTC")
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := &MySQLContainer{container: mysqlContainer, db: db, dsn: dsn}
	if err := c.HealthCheck(ctx); err != nil {
		_ = c.Terminate(context.Background())
		return nil, err
	}
	return c, nil
}

// DSN returns a go-sql-driver DSN with parseTime enabled, suitable for gorm.
func (c *MySQLContainer) DSN() string {
	return c.dsn
}

// HealthCheck runs a trivial query against the database.
func (c *MySQLContainer) HealthCheck(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned unexpected result: %d", result)
	}
	return nil
}

// Reset truncates the given tables with foreign key checks disabled.
func (c *MySQLContainer) Reset(ctx context.Context, tables ...string) error {
	if c.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	for _, table := range tables {
		if !validTableNameRe.MatchString(table) {
			return fmt.Errorf("invalid table name: %q", table)
		}
	}

	// SET FOREIGN_KEY_CHECKS is per session, so pin one connection.
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "SET FOREIGN_KEY_CHECKS = 1") }()

	for _, table := range tables {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE `%s`", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// Terminate closes the admin connection and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	if c.container != nil {
		if err := c.container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate container: %w", err)
		}
	}
	return nil
}

// Package integration hosts cross-package tests that run the platform
// against real PostgreSQL databases started with testcontainers. One
// container plays the landlord registry; tenant datastores are created as
// additional databases inside the same container, which mirrors the
// single-cluster deployment layout.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testDBUser     = "postgres"
	testDBPassword = "admin123"
	registryDBName = "facturo_registry"
)

// TestRegistry is a containerized landlord registry plus the connection
// details tenant locators need to reach databases in the same container.
type TestRegistry struct {
	DB        *gorm.DB
	Container testcontainers.Container
	Host      string
	Port      int
	User      string
	Password  string
}

// StartRegistry starts a PostgreSQL container, applies the landlord
// migrations and returns a connected registry. The container is torn down
// with the test.
func StartRegistry(t *testing.T) *TestRegistry {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(registryDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	host, port := hostPort(t, dsn)
	reg := &TestRegistry{
		Container: container,
		Host:      host,
		Port:      port,
		User:      testDBUser,
		Password:  testDBPassword,
	}

	applyMigrations(t, reg.dsn(registryDBName), migrationsDir("landlord"))
	reg.DB = openGorm(t, reg.dsn(registryDBName))
	return reg
}

// CreateTenantDatabase creates an empty database for a tenant and applies
// the tenant schema migrations to it.
func (r *TestRegistry) CreateTenantDatabase(t *testing.T, name string) {
	t.Helper()

	admin, err := sql.Open("postgres", r.dsn(registryDBName))
	require.NoError(t, err)
	defer admin.Close()

	_, err = admin.Exec("CREATE DATABASE " + name)
	require.NoError(t, err, "Failed to create tenant database")

	applyMigrations(t, r.dsn(name), migrationsDir("tenant"))
}

func (r *TestRegistry) dsn(database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(r.User, r.Password),
		Host:     fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:     database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func hostPort(t *testing.T, dsn string) (string, int) {
	t.Helper()
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func openGorm(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err, "Failed to open GORM connection")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func applyMigrations(t *testing.T, dsn, path string) {
	t.Helper()

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to apply migrations from %s", path)

	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)
}

// migrationsDir resolves a migrations subdirectory relative to this file,
// so tests work regardless of the working directory.
func migrationsDir(name string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations", name)
}

//go:build integration

// Package pgtest поднимает Postgres в контейнере для интеграционных тестов
// и накатывает миграции из каталога migrations.
package pgtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	dbUser     = "postgres"
	dbPassword = "postgres"
	dbName     = "event_shop_test"
)

// Start запускает контейнер, применяет миграции и возвращает открытое соединение
func Start(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     dbUser,
				"POSTGRES_PASSWORD": dbPassword,
				"POSTGRES_DB":       dbName,
			},
			// postgres перезапускается после init-скриптов, готовность пишется дважды
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, host, port.Port(), dbName)

	m, err := migrate.New("file://"+migrationsDir(), dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	return db
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// SeedUser создаёт пользователя и возвращает его id
func SeedUser(t *testing.T, db *sql.DB, email string, admin bool) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"INSERT INTO users (email, full_name, is_admin) VALUES ($1, $2, $3) RETURNING id",
		email, email, admin,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// SeedMerch создаёт товар и возвращает его id
func SeedMerch(t *testing.T, db *sql.DB, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		"INSERT INTO merchandise (name, price, stock) VALUES ($1, $2, $3) RETURNING id",
		name, price, stock,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// Stock читает текущий остаток товара
func Stock(t *testing.T, db *sql.DB, merchID int64) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow("SELECT stock FROM merchandise WHERE id = $1", merchID).Scan(&stock))
	return stock
}

package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDb    *sqlx.DB
	getDbOnce sync.Once
)

// GetDb connects to POSTGRES_URL, starting a throwaway container when
// the variable is unset. The connection is shared by all tests in the
// package; the container is reaped when the test process exits.
func GetDb(t *testing.T) *sqlx.DB {
	getDbOnce.Do(func() {
		if os.Getenv("POSTGRES_URL") == "" {
			_, url := StartPostgresContainer()
			os.Setenv("POSTGRES_URL", url)
		}

		var err error
		testDb, err = sqlx.Open("postgres", os.Getenv("POSTGRES_URL"))
		assert.NoError(t, err)

		err = InitializeDatabaseSchema(testDb)
		assert.NoError(t, err)
	})
	return testDb
}

func StartPostgresContainer() (testcontainers.Container, string) {
	ctx := context.Background()
	dbName := "db"
	dbUser := "user"
	dbPassword := "password"

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:15.2-alpine"),
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		panic(err)
	}

	return postgresContainer, connStr
}

package tests

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"travelbook/db"
)

var (
	postgresURL = os.Getenv("POSTGRES_URL")
	redisURL    = os.Getenv("REDIS_ADDR")

	containers []testcontainers.Container
)

// TestMain provisions postgres and redis for the component tests. Both
// can be pointed at already-running instances through POSTGRES_URL and
// REDIS_ADDR; whatever is missing is started as a container and
// terminated afterwards.
func TestMain(m *testing.M) {
	code := 1
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("test setup failed:", r)
		}
		stopContainers()
		os.Exit(code)
	}()

	if postgresURL == "" {
		postgresURL = startPostgres()
	}
	initSchema(postgresURL)

	if redisURL == "" {
		redisURL = startRedis()
	}

	code = m.Run()
}

func stopContainers() {
	ctx := context.Background()
	for _, c := range containers {
		if err := c.Terminate(ctx); err != nil {
			fmt.Println("could not terminate container:", err)
		}
	}
}

func startPostgres() string {
	container, connStr := db.StartPostgresContainer()
	containers = append(containers, container)
	return connStr
}

func initSchema(url string) {
	conn, err := sqlx.Open("postgres", url)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	if err := db.InitializeDatabaseSchema(conn); err != nil {
		panic(err)
	}
}

func startRedis() string {
	ctx := context.Background()

	container, err := rediscontainer.RunContainer(ctx,
		testcontainers.WithImage("docker.io/redis:7"),
		rediscontainer.WithSnapshotting(10, 1),
		rediscontainer.WithLogLevel(rediscontainer.LogLevelVerbose),
	)
	if err != nil {
		panic(err)
	}
	containers = append(containers, container)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		panic(err)
	}

	// The go-redis client takes host:port, not a redis:// url.
	return strings.TrimPrefix(uri, "redis://")
}

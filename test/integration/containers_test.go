package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// env is the infrastructure shared by every test in the package.
var env *infrastructure

type infrastructure struct {
	postgres testcontainers.Container
	redis    testcontainers.Container

	sqlDB  *sqlx.DB
	db     database.DB
	rdb    *redis.Client
	logger ectologger.Logger
}

func TestMain(m *testing.M) {
	if os.Getenv("FERN_INTEGRATION") == "" {
		fmt.Println("skipping integration tests, set FERN_INTEGRATION=1 to run them")
		os.Exit(0)
	}

	ctx := context.Background()
	infra, err := startInfrastructure(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	env = infra

	code := m.Run()
	infra.stop(ctx)
	os.Exit(code)
}

func startInfrastructure(ctx context.Context) (*infrastructure, error) {
	zapLogger, _ := zap.NewDevelopment()
	infra := &infrastructure{logger: zapadapter.NewZapEctoLogger(zapLogger, nil)}

	if err := infra.startPostgres(ctx); err != nil {
		infra.stop(ctx)
		return nil, fmt.Errorf("failed to start PostgreSQL: %w", err)
	}
	if err := infra.startRedis(ctx); err != nil {
		infra.stop(ctx)
		return nil, fmt.Errorf("failed to start Redis: %w", err)
	}
	return infra, nil
}

func (i *infrastructure) startPostgres(ctx context.Context) error {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fern",
				"POSTGRES_PASSWORD": "fern",
				"POSTGRES_DB":       "fern",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return err
	}
	i.postgres = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}

	dsn := fmt.Sprintf("postgres://fern:fern@%s:%s/fern?sslmode=disable", host, port.Port())
	sqlDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return err
	}
	i.sqlDB = sqlDB
	i.db = database.NewDatabaseInstance(sqlDB, i.logger)

	return database.NewMigrationService(i.logger, &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
		AutoRollback:        true,
	}).MigratePostgres(sqlDB, "fern")
}

func (i *infrastructure) startRedis(ctx context.Context) error {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return err
	}
	i.redis = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return err
	}

	i.rdb, err = redis.NewClient(ctx, redis.Config{Host: host, Port: port.Int()}, i.logger)
	return err
}

func (i *infrastructure) stop(ctx context.Context) {
	if i.rdb != nil {
		_ = i.rdb.Close()
	}
	if i.sqlDB != nil {
		_ = i.sqlDB.Close()
	}
	for _, c := range []testcontainers.Container{i.redis, i.postgres} {
		if c != nil {
			_ = c.Terminate(ctx)
		}
	}
}

// reset empties every table between tests.
func (i *infrastructure) reset(t *testing.T) {
	t.Helper()
	_, err := i.sqlDB.Exec(`TRUNCATE notification_records, duplicate_conflicts, listing_agency_variants,
		listings, buyer_preferences, clients CASCADE`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

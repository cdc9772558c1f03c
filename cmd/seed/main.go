package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/2beens/blogposts/internal/config"
	"github.com/2beens/blogposts/internal/db"
	"github.com/2beens/blogposts/internal/logging"
	"github.com/2beens/blogposts/internal/posts"
	"github.com/2beens/blogposts/internal/seed"
)

// seed fills the configured document store with generated posts
func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code, deferred closes run before exiting
func run(args []string) int {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	env := flags.String("env", "development", "environment [prod | production | dev | development | ddev | dockerdev ]")
	configPath := flags.String("config", "./config.toml", "path for the TOML config file")
	count := flags.Int("n", 10, "number of posts to generate")
	drop := flags.Bool("drop", false, "remove all existing posts first")
	randSeed := flags.Int64("seed", 0, "random seed, 0 for a random one")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		return 1
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, closeRepo, err := openRepo(ctx, cfg)
	if err != nil {
		log.Errorf("open store: %s", err)
		return 1
	}
	defer closeRepo()

	seeded, total, err := seedStore(ctx, repo, *drop, *count, *randSeed)
	if err != nil {
		log.Errorf("seed store: %s", err)
		return 1
	}
	log.Infof("seeded %d posts into [%s] store, %d posts in total", seeded, cfg.StoreDriver, total)
	return 0
}

func seedStore(ctx context.Context, repo posts.Repo, drop bool, count int, randSeed int64) (int, int, error) {
	if drop {
		if err := repo.Drop(ctx); err != nil {
			return 0, 0, fmt.Errorf("drop posts: %w", err)
		}
		log.Infoln("existing posts removed")
	}

	seeded, err := seed.NewGenerator(randSeed).Seed(ctx, repo, count)
	if err != nil {
		return 0, 0, err
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return len(seeded), 0, fmt.Errorf("count posts: %w", err)
	}
	return len(seeded), total, nil
}

func openRepo(ctx context.Context, cfg *config.Config) (posts.Repo, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriver.Mongo:
		client, err := db.NewMongoClient(ctx, db.NewMongoClientParams{
			URI:     cfg.MongoURI,
			AppName: "blogposts-seed",
		})
		if err != nil {
			return nil, nil, err
		}
		return posts.NewMongoRepo(client, cfg.MongoDBName), disconnectFunc(client), nil
	case config.StoreDriver.Postgres:
		pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost: cfg.PostgresHost,
			DBPort: cfg.PostgresPort,
			DBName: cfg.PostgresDBName,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsurePostsTable(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return posts.NewPsqlRepo(pool), closePoolFunc(pool), nil
	default:
		return nil, nil, fmt.Errorf("store driver %s cannot be seeded", cfg.StoreDriver)
	}
}

func disconnectFunc(client *mongo.Client) func() {
	return func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warnf("mongo disconnect: %s", err)
		}
	}
}

func closePoolFunc(pool *pgxpool.Pool) func() {
	return pool.Close
}

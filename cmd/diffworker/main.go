// Command diffworker drains the diff-job queue: a fixed-size pool of
// goroutines each pop image ids, race for the per-id lock, and invoke
// the diff engine on a win. Flags mirror
// original_source/scripts/diff-worker.py's coordinator host/port/db/
// password configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/objectstore"
	"github.com/distribution/layersvc/pkg/workqueue"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		log.Fatalf("diffworker: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		redisHost     string
		redisPort     int
		redisDB       int
		redisPassword string
		concurrency   int
		fsRoot        string
		s3Bucket      string
		s3Prefix      string
	)

	flagSet := flag.NewFlagSet("diffworker", flag.ExitOnError)
	flagSet.StringVar(&redisHost, "redis-host", "localhost", "diff-queue coordinator host")
	flagSet.IntVar(&redisPort, "redis-port", 6379, "diff-queue coordinator port")
	flagSet.IntVar(&redisDB, "redis-db", 0, "diff-queue coordinator database index")
	flagSet.StringVar(&redisPassword, "redis-password", "", "diff-queue coordinator password")
	flagSet.IntVar(&concurrency, "concurrency", 4, "number of concurrent diff workers")
	flagSet.StringVar(&fsRoot, "fs-root", "./data", "root directory for the filesystem blob store")
	flagSet.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket to read layers from (enables the S3 blob store when set)")
	flagSet.StringVar(&s3Prefix, "s3-prefix", "", "key prefix for the S3 blob store")

	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}

	var blobs objectstore.Store
	var err error
	if s3Bucket != "" {
		blobs, err = objectstore.NewS3Store(ctx, s3Bucket, s3Prefix)
	} else {
		blobs = objectstore.NewFilesystemStore(fsRoot)
	}
	if err != nil {
		return fmt.Errorf("building blob store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisHost, redisPort),
		Password: redisPassword,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to diff-queue coordinator: %w", err)
	}

	images := imagestore.New(blobs)
	worker := workqueue.NewWorker(workqueue.NewQueue(rdb), workqueue.NewLock(rdb), images)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("diffworker: running %d workers against %s", concurrency, rdb.Options().Addr)
	return worker.Run(sigCtx, concurrency)
}

// Command registry serves the image-layer HTTP API over a
// configurable blob store, Redis-backed diff queue, and cookie-backed
// session store: a single flag.FlagSet, functional-option wiring for
// the AWS config, and a plain net/http.Server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"

	"github.com/distribution/layersvc/pkg/httpapi"
	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/objectstore"
	"github.com/distribution/layersvc/pkg/session"
	"github.com/distribution/layersvc/pkg/upload"
	"github.com/distribution/layersvc/pkg/workqueue"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		log.Fatalf("registry: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		address         string
		port            int
		blobStore       blobStoreKind = "filesystem"
		fsRoot          string
		s3Bucket        string
		s3Prefix        string
		s3Endpoint      string
		s3Region        string
		s3Profile       string
		accelPrefix     string
		redisAddr       string
		redisPassword   string
		redisDB         int
		sessionHashKey  string
		sessionBlockKey string
	)

	flagSet := flag.NewFlagSet("registry", flag.ExitOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Serve the image-layer registry API\n\n")
		fmt.Fprintf(flagSet.Output(), "Usage: registry [OPTIONS]\n")
		flagSet.PrintDefaults()
	}
	flagSet.StringVar(&address, "address", "0.0.0.0", "address to bind the HTTP server to")
	flagSet.IntVar(&port, "port", 5000, "port to bind the HTTP server to")
	flagSet.Var(&blobStore, "blob-store", `blob store backend: "filesystem", "s3", or "combined" (filesystem cache in front of S3)`)
	flagSet.StringVar(&fsRoot, "fs-root", "./data", "root directory for the filesystem blob store")
	flagSet.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket for the S3 blob store")
	flagSet.StringVar(&s3Prefix, "s3-prefix", "", "key prefix for the S3 blob store")
	flagSet.StringVar(&s3Endpoint, "s3-endpoint", "", "S3 endpoint override (optional)")
	flagSet.StringVar(&s3Region, "s3-region", "", "S3 region override (optional)")
	flagSet.StringVar(&s3Profile, "s3-profile", "", "AWS shared config profile (optional)")
	flagSet.StringVar(&accelPrefix, "nginx-x-accel-redirect", "", "accelerated-download URI prefix (filesystem backend only)")
	flagSet.StringVar(&redisAddr, "redis-addr", "localhost:6379", "diff-queue coordinator address")
	flagSet.StringVar(&redisPassword, "redis-password", "", "diff-queue coordinator password")
	flagSet.IntVar(&redisDB, "redis-db", 0, "diff-queue coordinator database index")
	flagSet.StringVar(&sessionHashKey, "session-hash-key", "", "32 or 64 byte key authenticating session cookies (required)")
	flagSet.StringVar(&sessionBlockKey, "session-block-key", "", "16, 24, or 32 byte key encrypting session cookies (optional)")

	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	if sessionHashKey == "" {
		return fmt.Errorf("-session-hash-key is required")
	}

	blobs, err := buildBlobStore(ctx, blobStore, fsRoot, s3Bucket, s3Prefix, s3Endpoint, s3Region, s3Profile)
	if err != nil {
		return fmt.Errorf("building blob store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to diff-queue coordinator: %w", err)
	}

	images := imagestore.New(blobs)
	deps := &httpapi.Deps{
		Images:      images,
		Blobs:       blobs,
		Uploads:     upload.New(images),
		Sessions:    session.New([]byte(sessionHashKey), []byte(sessionBlockKey)),
		DiffQueue:   workqueue.NewQueue(rdb),
		AccelPrefix: accelPrefix,
	}

	router := httpapi.NewRouter(deps)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", address, port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // layer uploads/downloads may be large and slow
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("registry: listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func buildBlobStore(ctx context.Context, kind blobStoreKind, fsRoot, bucket, prefix, endpoint, region, profile string) (objectstore.Store, error) {
	switch kind {
	case "s3":
		return buildS3Store(ctx, bucket, prefix, endpoint, region, profile)
	case "combined":
		s3Store, err := buildS3Store(ctx, bucket, prefix, endpoint, region, profile)
		if err != nil {
			return nil, err
		}
		// Filesystem primary fronts the colder S3 secondary: a read
		// that misses the local cache falls through to S3 and every
		// write lands on the local cache only, per FallbackStore's
		// write-through-primary-only contract.
		return objectstore.NewFallbackStore(objectstore.NewFilesystemStore(fsRoot), s3Store), nil
	default:
		return objectstore.NewFilesystemStore(fsRoot), nil
	}
}

func buildS3Store(ctx context.Context, bucket, prefix, endpoint, region, profile string) (*objectstore.S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("-s3-bucket is required for the s3 and combined blob stores")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if endpoint != "" {
		opts = append(opts, func(o *awsconfig.LoadOptions) error {
			o.BaseEndpoint = endpoint
			return nil
		})
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	return objectstore.NewS3Store(ctx, bucket, prefix, opts...)
}

package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"todogenie-api/storage"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("missing DATABASE_URL")
	}

	ctx := context.Background()
	store, err := connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer store.Close()

	if err := storage.Migrate(ctx, store.DB()); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	log.Info("storage init complete")
}

// connect retries until the database accepts connections, as it may still be
// starting when init runs.
func connect(ctx context.Context, dsn string) (*storage.Storage, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, connectDelay)
		store, err := storage.Open(attemptCtx, dsn)
		cancel()
		if err == nil {
			return store, nil
		}
		lastErr = err
		log.WithField("attempt", attempt).WithError(err).Warn("database not ready")
		time.Sleep(connectDelay)
	}
	return nil, lastErr
}

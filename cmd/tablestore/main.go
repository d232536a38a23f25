// Command tablestore drives the dump-to-sorted-store pipeline end to
// end: read TABLESTORE_* environment configuration, open a table dump,
// split each row into a key/value pair, and write a sorted store.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/relstore/tablestore/internal/config"
	"github.com/relstore/tablestore/pkg/logger"
	"github.com/relstore/tablestore/pkg/pebblestore"
	"github.com/relstore/tablestore/pkg/rowsplit"
	"github.com/relstore/tablestore/pkg/tablestore"
)

func main() {
	logger.SetDefault(logger.MustProduction())
	defer logger.SyncDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.ImportEnv()

	if err := run(ctx); err != nil {
		logger.Fatal("tablestore error", "error", err)
	}
}

func run(ctx context.Context) error {
	store, err := tablestore.Open(config.TABLESTORE_TABLE, config.TABLESTORE_DUMP_FILE,
		tablestore.WithLogger(logger.Default()),
		tablestore.WithMaxBlockBytes(int(config.TABLESTORE_MAX_BLOCK_B)),
		tablestore.WithFanIn(config.TABLESTORE_FAN_IN),
		tablestore.WithPgRestoreBinary(config.TABLESTORE_PG_RESTORE),
	)
	if err != nil {
		return err
	}

	logger.Default().Info("dump opened", "columns", store.ColumnNames())

	if config.TABLESTORE_BACKEND == "pebble" {
		return runWithBackend(ctx, store, config.TABLESTORE_OUTPUT_DIR)
	}
	return runWithMergesort(ctx, store)
}

// runWithMergesort drives the homegrown external-merge-sort backend via
// the Store's own Put/Finish, which forward to pkg/mergestore.Coordinator.
func runWithMergesort(ctx context.Context, store *tablestore.Store) error {
	splitter := rowsplit.FirstColumnKey{}

	var row []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok, err := store.ReadRow(&row)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		key, value := splitter.Split(row)
		if err := store.Put(key, value); err != nil {
			return err
		}
	}

	return store.Finish()
}

// runWithBackend drives the alternate Pebble-backed pipeline named in
// SPEC_FULL.md §8, bypassing mergestore.Coordinator entirely. Store is
// only used here for its dump-reading half (ReadRow); its coordinator
// side is never Put to, so Close (not Finish) is what releases the
// dump source's subprocess pipe once reading is done.
func runWithBackend(ctx context.Context, store *tablestore.Store, outputDir string) error {
	defer store.Close()

	backend, err := pebblestore.Open(outputDir,
		pebblestore.WithLogger(logger.Default()),
	)
	if err != nil {
		return err
	}

	splitter := rowsplit.FirstColumnKey{}

	var row []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok, err := store.ReadRow(&row)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		key, value := splitter.Split(row)
		if err := backend.Put(key, value); err != nil {
			return err
		}
	}

	return backend.Finish()
}

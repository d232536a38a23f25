// Package config holds environment-overridable settings for the
// tablestore CLI. Nothing in pkg/mergestore or pkg/dumpsource imports this
// package — the core takes plain values through constructors so it stays
// usable as a library independent of how a caller loads configuration.
package config

// injected configuration
var (
	APP_NAME    string = "tablestore"
	APP_VERSION string = "0.1.0"
)

// values overridden by environment variables, see ImportEnv
var (
	TABLESTORE_TABLE       string = ""
	TABLESTORE_DUMP_FILE   string = ""
	TABLESTORE_OUTPUT_DIR  string = ""
	TABLESTORE_PG_RESTORE  string = "pg_restore"
	TABLESTORE_BACKEND     string = "mergesort" // "mergesort" or "pebble"
	TABLESTORE_MAX_BLOCK_B int64  = 64 << 20     // MAX_BLOCK_BYTES, spec.md §3
	TABLESTORE_FAN_IN      int    = 16
)

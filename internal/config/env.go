package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// ImportEnv loads a .env file (if present) and the process environment into
// viper, then applies any TABLESTORE_* overrides onto the package-level
// config variables. A missing .env file is not an error; a malformed one is.
func ImportEnv() {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Panicln(fmt.Errorf("fatal error config file: %s", err))
		}
	}

	if v := viper.GetString("TABLESTORE_TABLE"); v != "" {
		TABLESTORE_TABLE = v
	}
	if v := viper.GetString("TABLESTORE_DUMP_FILE"); v != "" {
		TABLESTORE_DUMP_FILE = v
	}
	if v := viper.GetString("TABLESTORE_OUTPUT_DIR"); v != "" {
		TABLESTORE_OUTPUT_DIR = v
	}
	if v := viper.GetString("TABLESTORE_PG_RESTORE"); v != "" {
		TABLESTORE_PG_RESTORE = v
	}
	if v := viper.GetString("TABLESTORE_BACKEND"); v != "" {
		TABLESTORE_BACKEND = v
	}
	if v := viper.GetInt64("TABLESTORE_MAX_BLOCK_B"); v != 0 {
		TABLESTORE_MAX_BLOCK_B = v
	}
	if v := viper.GetInt("TABLESTORE_FAN_IN"); v != 0 {
		TABLESTORE_FAN_IN = v
	}
}

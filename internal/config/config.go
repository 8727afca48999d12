package config

import (
	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// DBFile is the path to the local catalog SQLite database
	DBFile string
	// MirrorBaseURL is the base URL of the mirror API used for synchronization
	MirrorBaseURL string
	// SyncBatchSize is the page size requested from the mirror per fetch
	SyncBatchSize int
	// ImportCheckpoint is the record cadence for progress and disk probes
	ImportCheckpoint int
)

// InitConfig initializes the global configuration
func InitConfig() {
	// Set default values
	viper.SetDefault("dbfile", "./alexandria.db")
	viper.SetDefault("mirror.baseurl", "")
	viper.SetDefault("sync.batchsize", 500)
	viper.SetDefault("import.checkpoint", 500)

	// Get values from viper
	DBFile = viper.GetString("dbfile")
	MirrorBaseURL = viper.GetString("mirror.baseurl")
	SyncBatchSize = viper.GetInt("sync.batchsize")
	ImportCheckpoint = viper.GetInt("import.checkpoint")
}

// SetDBFile sets the catalog database path
func SetDBFile(path string) {
	DBFile = path
}

// SetMirrorBaseURL sets the mirror API base URL
func SetMirrorBaseURL(url string) {
	MirrorBaseURL = url
}

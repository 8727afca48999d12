package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestInitConfigDefaults(t *testing.T) {
	origDBFile := DBFile
	origMirror := MirrorBaseURL
	origBatch := SyncBatchSize
	origCheckpoint := ImportCheckpoint
	t.Cleanup(func() {
		DBFile = origDBFile
		MirrorBaseURL = origMirror
		SyncBatchSize = origBatch
		ImportCheckpoint = origCheckpoint
		viper.Reset()
	})
	viper.Reset()

	InitConfig()

	assert.Equal(t, "./alexandria.db", DBFile)
	assert.Equal(t, "", MirrorBaseURL)
	assert.Equal(t, 500, SyncBatchSize)
	assert.Equal(t, 500, ImportCheckpoint)
}

func TestSetDBFile(t *testing.T) {
	originalValue := DBFile

	SetDBFile("/tmp/catalog.db")
	assert.Equal(t, "/tmp/catalog.db", DBFile)

	DBFile = originalValue
}

func TestSetMirrorBaseURL(t *testing.T) {
	originalValue := MirrorBaseURL

	SetMirrorBaseURL("https://mirror.example")
	assert.Equal(t, "https://mirror.example", MirrorBaseURL)

	MirrorBaseURL = originalValue
}

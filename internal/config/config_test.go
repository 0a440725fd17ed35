package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		parseOrigins(" https://a.example, ,https://b.example "))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GRADER_URL", "http://grader.local/")
	t.Setenv("SUBMIT_TIMEOUT_SECONDS", "3")
	t.Setenv("WS_ACTIONS_PER_SECOND", "2.5")
	t.Setenv("WS_ACTION_BURST", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "http://grader.local", cfg.GraderURL)
	assert.Equal(t, 3*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 2.5, cfg.WSActionsPerSecond)
	assert.Equal(t, 20, cfg.WSActionBurst)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "test:abc:paper", CacheKey.TestPaperKey("abc"))
	assert.Equal(t, "test:abc:key", CacheKey.TestAnswerKey("abc"))
	assert.Equal(t, "student:4:test:abc:submitted", CacheKey.StudentSubmittedKey("abc", 4))
	assert.Equal(t, "test:abc:monitor", CacheKey.TestMonitorChannel("abc"))
}

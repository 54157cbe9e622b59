package analyzer

import (
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultAppName      = "automation-analyzer"
	DefaultDatabaseType = "libsql"
	DefaultCacheBackend = "libsql"
)

// Cache namespaces. Bump the version to orphan entries after an incompatible payload change.
const (
	SubtasksCacheName = "subtasks_cache"
	WorkflowCacheName = "workflow_cache"
	JobTextCacheName  = "jobtext_cache"
	CacheVersion      = 1
)

const (
	DefaultSubtasksTTL    = 14 * 24 * time.Hour
	DefaultWorkflowTTL    = 14 * 24 * time.Hour
	DefaultJobTextTTL     = 24 * time.Hour
	DefaultComputeTimeout = 8 * time.Second
	DefaultScrapeTimeout  = 5 * time.Second
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultCacheDir    = filepath.Join(userCacheDir(), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(DefaultCacheDir, "db")
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "cache.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

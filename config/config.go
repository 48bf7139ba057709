package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var gitSHA string
var buildDate string

// LoadDotEnv loads a .env file from the working directory if present.
// Real environment variables win over file entries.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func GetListenAddr() string {
	if value, exists := os.LookupEnv("VIDGRAB_LISTEN_ADDR"); exists {
		return value
	}
	return ":8080"
}

func GetDataDir() string {
	value, exists := os.LookupEnv("VIDGRAB_DATA_DIR")
	if exists {
		return value
	}
	return "data"
}

// defaults to GetDataDir() / config
func GetConfigDir() string {
	value, exists := os.LookupEnv("VIDGRAB_CONFIG_DIR")
	if exists {
		return value
	}
	return filepath.Join(GetDataDir(), "config")
}

// defaults to GetDataDir() / tmp
func GetTempDir() string {
	value, exists := os.LookupEnv("VIDGRAB_TEMP_DIR")
	if exists {
		return value
	}
	return filepath.Join(GetDataDir(), "tmp")
}

// GetAllowedHosts returns the download source allow-list. Override with a
// comma-separated VIDGRAB_ALLOWED_HOSTS. Subdomains of a listed host are
// also accepted, so "youtube.com" covers "www.youtube.com".
func GetAllowedHosts() []string {
	if value, exists := os.LookupEnv("VIDGRAB_ALLOWED_HOSTS"); exists {
		var hosts []string
		for _, h := range strings.Split(value, ",") {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				hosts = append(hosts, h)
			}
		}
		return hosts
	}
	return []string{
		"youtube.com",
		"youtu.be",
		"music.youtube.com",
		"vimeo.com",
		"soundcloud.com",
		"twitch.tv",
	}
}

func GetAdminInitialPassword() (string, error) {
	key := "VIDGRAB_ADMIN_INITIAL_PASSWORD"
	value, exists := os.LookupEnv(key)
	if exists {
		return value, nil
	}
	return "", fmt.Errorf("please set %s", key)
}

func GetSessionAuthKey() ([]byte, error) {
	key := "VIDGRAB_SESSION_AUTH_KEY"
	value, exists := os.LookupEnv(key)
	if exists {
		return []byte(value), nil
	}
	return []byte{}, fmt.Errorf("please set %s", key)
}

func GetSecure() bool {
	key := "VIDGRAB_SECURE"
	if value, exists := os.LookupEnv(key); exists {
		lower := strings.ToLower(value)
		if lower == "on" || lower == "1" || lower == "true" || lower == "yes" {
			return true
		}
	}
	return false
}

// GetRedisAddr returns the Redis address for the rate limiter.
// Empty means use the in-memory store.
func GetRedisAddr() string {
	return os.Getenv("VIDGRAB_REDIS_ADDR")
}

func GetRedisPassword() string {
	return os.Getenv("VIDGRAB_REDIS_PASSWORD")
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// downloads per client per window
func GetRateLimit() int {
	return getInt("VIDGRAB_RATE_LIMIT", 10)
}

func GetRateWindow() time.Duration {
	return getDuration("VIDGRAB_RATE_WINDOW", time.Minute)
}

// coarse per-IP limit across all API routes
func GetAPIRateLimit() int {
	return getInt("VIDGRAB_API_RATE_LIMIT", 120)
}

func GetMaxConcurrent() int {
	return getInt("VIDGRAB_MAX_CONCURRENT", 4)
}

// seconds of source media
func GetMaxDuration() int {
	return getInt("VIDGRAB_MAX_DURATION", 4*3600)
}

func GetMaxFileSize() int64 {
	return getInt64("VIDGRAB_MAX_FILESIZE", 2<<30)
}

func GetRequestTimeout() time.Duration {
	return getDuration("VIDGRAB_REQUEST_TIMEOUT", 30*time.Minute)
}

func GetProbeTimeout() time.Duration {
	return getDuration("VIDGRAB_PROBE_TIMEOUT", 30*time.Second)
}

func GetGitSHA() string {
	if gitSHA == "" {
		return "<not provided>"
	} else {
		return gitSHA
	}
}

func GetBuildDate() string {
	if buildDate == "" {
		return "<not provided>"
	} else {
		return buildDate
	}
}

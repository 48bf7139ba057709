package main

import (
	"os"
	"path/filepath"
	"time"

	"vidgrab/config"
	"vidgrab/history"
	"vidgrab/ratelimit"
)

// temp files from fallback downloads whose request died uncleanly
const orphanAge = 24 * time.Hour

// history rows are operator debugging aid, not an archive
const historyRetention = 30 * 24 * time.Hour

func cleanupOrphanedTempFiles() {
	log.Debugln("cleanupOrphanedTempFiles...")
	tempDir := config.GetTempDir()

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		log.Errorln(err)
		return
	}

	cutoff := time.Now().Add(-orphanAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		log.Infof("removing orphaned temp entry %s", path)
		if err := os.RemoveAll(path); err != nil {
			log.Errorln(err)
		}
	}
}

func cleanupHistory() {
	log.Debugln("cleanupHistory...")
	n, err := history.PruneOlderThan(db, time.Now().Add(-historyRetention))
	if err != nil {
		log.Errorln(err)
	} else if n > 0 {
		log.Infof("pruned %d old history rows", n)
	}
}

func vacuumDatabase() {
	if err := db.Exec("VACUUM").Error; err != nil {
		log.Errorln(err)
	}
}

func PeriodicCleanup(memStore *ratelimit.MemoryStore) {
	cleanup := func() {
		cleanupOrphanedTempFiles()
		cleanupHistory()
		vacuumDatabase()
		if memStore != nil {
			memStore.Prune(config.GetRateWindow(), time.Now())
		}
	}

	cleanup()
	ticker := time.NewTicker(1 * time.Hour)
	for range ticker.C {
		cleanup()
	}
}

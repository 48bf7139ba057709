package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"golang.org/x/sys/unix"

	"vidgrab/config"
	"vidgrab/ffmpeg"
	"vidgrab/ytdlp"
)

// getFreeSpace returns the free space in bytes for the filesystem containing the given directory
func getFreeSpace(dir string) (uint64, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(dir, &stat)
	if err != nil {
		return 0, fmt.Errorf("error getting filesystem stats: %v", err)
	}

	freeSpace := stat.Bavail * uint64(stat.Bsize)
	return freeSpace, nil
}

// getDirectorySize calculates the total size of a directory in bytes
func getDirectorySize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error walking directory: %v", err)
	}
	return size, nil
}

func StatusGet(c echo.Context) error {
	ctx := c.Request().Context()

	ytdlpVersion, err := ytdlp.Version(ctx)
	if err != nil {
		log.Errorln(err)
	}
	ffmpegVersion, err := ffmpeg.Version(ctx)
	if err != nil {
		log.Errorln(err)
	}

	free, err := getFreeSpace(config.GetDataDir())
	if err != nil {
		log.Errorln(err)
	}
	used, err := getDirectorySize(config.GetTempDir())
	if err != nil {
		log.Errorln(err)
	}

	freeMiB := float64(free) / 1024 / 1024
	usedMiB := float64(used) / 1024 / 1024

	return c.Render(http.StatusOK, "status.html", map[string]interface{}{
		"ytdlp":  ytdlpVersion,
		"ffmpeg": ffmpegVersion,
		"free":   fmt.Sprintf("%.2f", freeMiB),
		"used":   fmt.Sprintf("%.2f", usedMiB),
		"active": manager.ActiveCount(),
		"Footer": MakeFooter(),
	})
}

func HealthGet(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Package history records download requests and their outcomes.
package history

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Status string

const (
	Pending   Status = "pending"
	Streaming Status = "streaming"
	Completed Status = "completed"
	Failed    Status = "failed"
	Aborted   Status = "aborted"
)

// Download is one download request, kept for the history page and for
// operator debugging. Rows older than the retention period are pruned by
// the cleanup worker.
type Download struct {
	gorm.Model
	URL       string
	Host      string
	Title     string
	ClientIP  string
	Mode      string // direct | fallback
	Status    Status
	Bytes     int64
	ErrorCode string
	ElapsedMS int64
}

// User is an operator account for the history/status pages.
type User struct {
	gorm.Model
	Username string `gorm:"unique"`
	Password string // bcrypt hash
}

func CreateUser(db *gorm.DB, username, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := User{Username: username, Password: string(hashedPassword)}
	return db.Create(&user).Error
}

// Record creates a pending row and returns its id.
func Record(db *gorm.DB, url, host, clientIP string) (uint, error) {
	d := Download{URL: url, Host: host, ClientIP: clientIP, Status: Pending}
	if err := db.Create(&d).Error; err != nil {
		return 0, err
	}
	return d.ID, nil
}

// SetStatus updates just the status column, used to flip a pending row
// to streaming once the transfer starts.
func SetStatus(db *gorm.DB, id uint, status Status) error {
	return db.Model(&Download{}).Where("id = ?", id).Update("status", status).Error
}

// Finish fills in the outcome of a previously recorded download.
func Finish(db *gorm.DB, id uint, status Status, mode, title, errorCode string, bytes int64, elapsed time.Duration) error {
	return db.Model(&Download{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"mode":       mode,
		"title":      title,
		"error_code": errorCode,
		"bytes":      bytes,
		"elapsed_ms": elapsed.Milliseconds(),
	}).Error
}

// Recent returns the latest n downloads, newest first.
func Recent(db *gorm.DB, n int) ([]Download, error) {
	var rows []Download
	err := db.Order("created_at DESC").Limit(n).Find(&rows).Error
	return rows, err
}

// PruneOlderThan hard-deletes rows created before the cutoff.
func PruneOlderThan(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Unscoped().Where("created_at < ?", cutoff).Delete(&Download{})
	return result.RowsAffected, result.Error
}

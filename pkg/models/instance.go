package models

import (
	"fmt"
	"time"
)

// RootPath is the path used when a whole container filesystem is backed up.
const RootPath = "/"

const ShortIDLength = 12

type BackupRecord struct {
	TakenAt   time.Time `json:"taken_at"`
	SizeBytes int64     `json:"size_bytes"`
	File      string    `json:"file"`
}

// Instance is a tracked (container, path) pair and its backup history.
// Backups is ordered by TakenAt ascending with at most one record per day.
type Instance struct {
	ID            string         `json:"id"`
	ContainerID   string         `json:"container_id"`
	ContainerName string         `json:"container_name"`
	Path          string         `json:"path"`
	CreatedAt     time.Time      `json:"created_at"`
	LastBackupAt  *time.Time     `json:"last_backup_at,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	LastAliveAt   *time.Time     `json:"last_alive_at,omitempty"`
	Backups       []BackupRecord `json:"backups"`
}

func (i *Instance) IsDeleted() bool {
	return i.DeletedAt != nil
}

// MarkDeleted sets DeletedAt once; later calls keep the first timestamp.
func (i *Instance) MarkDeleted(at time.Time) {
	if i.DeletedAt != nil {
		return
	}
	t := at
	i.DeletedAt = &t
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s:%s", i.ContainerID, i.Path)
}

func (i *Instance) HasBackupOn(day time.Time) bool {
	d := Day(day)
	for _, b := range i.Backups {
		if b.TakenAt.Equal(d) {
			return true
		}
	}
	return false
}

// AcceptsBackupOn reports whether a record for day would keep the history in
// order, either as a new newest record or as a same-day replacement.
func (i *Instance) AcceptsBackupOn(day time.Time) bool {
	n := len(i.Backups)
	return n == 0 || !Day(day).Before(i.Backups[n-1].TakenAt)
}

// AddBackup appends rec, or replaces the record of the same day. A record
// older than the newest one is rejected so history is never reordered.
// The replaced record is returned when there was one.
func (i *Instance) AddBackup(rec BackupRecord) (*BackupRecord, error) {
	rec.TakenAt = Day(rec.TakenAt)

	if !i.AcceptsBackupOn(rec.TakenAt) {
		last := i.Backups[len(i.Backups)-1]
		return nil, fmt.Errorf("backup for %s is older than latest backup %s",
			rec.TakenAt.Format(DateLayout), last.TakenAt.Format(DateLayout))
	}

	if n := len(i.Backups); n > 0 && i.Backups[n-1].TakenAt.Equal(rec.TakenAt) {
		last := i.Backups[n-1]
		i.Backups[n-1] = rec
		return &last, nil
	}

	i.Backups = append(i.Backups, rec)
	return nil, nil
}

func (i *Instance) TotalSize() int64 {
	var total int64
	for _, b := range i.Backups {
		total += b.SizeBytes
	}
	return total
}

func ShortID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}

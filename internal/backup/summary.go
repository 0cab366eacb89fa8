package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/aelpxy/stash/internal/utils"
)

type Failure struct {
	Subject string
	Err     string
}

// Summary is the outcome of one pass, handed to the notifier.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Containers    int
	DueContainers int
	NewInstances  int
	Deleted       int

	BackupsCreated int
	CreatedBytes   int64
	RecordsPruned  int
	PrunedBytes    int64
	GhostsRemoved  int

	Warnings []string
	Failures []Failure

	Disk *utils.DiskUsage
}

func (s *Summary) Warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func (s *Summary) Fail(subject string, err error) {
	s.Failures = append(s.Failures, Failure{Subject: subject, Err: err.Error()})
}

func (s *Summary) HasProblems() bool {
	return len(s.Warnings) > 0 || len(s.Failures) > 0
}

func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Text renders the summary as plain lines for logs and messages.
func (s *Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s\n", s.RunID)
	fmt.Fprintf(&b, "containers: %d (%d due)\n", s.Containers, s.DueContainers)
	fmt.Fprintf(&b, "created: %d backups, %s\n", s.BackupsCreated, utils.FormatBytes(s.CreatedBytes))
	fmt.Fprintf(&b, "pruned: %d backups, %s\n", s.RecordsPruned, utils.FormatBytes(s.PrunedBytes))
	if s.NewInstances > 0 || s.Deleted > 0 || s.GhostsRemoved > 0 {
		fmt.Fprintf(&b, "instances: %d new, %d deleted, %d removed\n", s.NewInstances, s.Deleted, s.GhostsRemoved)
	}
	if s.Disk != nil {
		fmt.Fprintf(&b, "disk free: %s of %s (%s)\n",
			utils.FormatBytes(int64(s.Disk.Free)),
			utils.FormatBytes(int64(s.Disk.Total)),
			utils.FormatPercent(s.Disk.FreePercent()))
	}

	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "failed: %s: %s\n", f.Subject, f.Err)
	}

	return strings.TrimRight(b.String(), "\n")
}

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/openrport/rguard/share/logger"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupSchedule = "@daily"
)

type deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupTask struct {
	log       *logger.Logger
	repo      deleter
	retention time.Duration
	now       func() time.Time
}

// NewCleanupTask returns a task that removes history older than retention.
func NewCleanupTask(log *logger.Logger, repo deleter, retention time.Duration) *CleanupTask {
	return &CleanupTask{
		log:       log,
		repo:      repo,
		retention: retention,
		now:       time.Now,
	}
}

func (t *CleanupTask) Run(ctx context.Context) error {
	deleted, err := t.repo.DeleteOlderThan(ctx, t.now().Add(-t.retention))
	if err != nil {
		return fmt.Errorf("failed to cleanup history: %v", err)
	}
	t.log.Debugf("%d history records deleted", deleted)
	return nil
}

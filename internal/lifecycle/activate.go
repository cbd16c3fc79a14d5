package lifecycle

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/logging"
)

// Activate 执行激活阶段的分区清理：枚举磁盘上的全部分区，
// 删除所有不在白名单中的陈旧分区。必须在 HTTP 监听开始前完成，
// 避免一边服务一边拆除正在使用的分区。
func Activate(ctx context.Context, store cache.Store, logger *logrus.Logger, keep []string) error {
	partitions, err := store.Partitions(ctx)
	if err != nil {
		return err
	}

	allowed := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		allowed[name] = struct{}{}
	}

	var purgeErrs []error
	purged := 0
	for _, name := range partitions {
		if _, ok := allowed[name]; ok {
			continue
		}
		if err := store.Drop(ctx, name); err != nil {
			purgeErrs = append(purgeErrs, err)
			logger.WithError(err).
				WithFields(logging.LifecycleFields("activate", name)).
				Error("partition_purge_failed")
			continue
		}
		purged++
		logger.WithFields(logging.LifecycleFields("activate", name)).Info("partition_purged")
	}

	fields := logrus.Fields{
		"action": "activate",
		"kept":   len(keep),
		"purged": purged,
	}
	logger.WithFields(fields).Info("activate_complete")
	return errors.Join(purgeErrs...)
}

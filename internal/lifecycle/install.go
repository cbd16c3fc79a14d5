package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fact-gate/fact-gate/internal/cache"
	"github.com/fact-gate/fact-gate/internal/logging"
)

// precacheConcurrency 限制安装阶段的并发抓取数，避免打爆上游。
const precacheConcurrency = 4

// Installer 负责安装阶段：把静态资源清单整体预缓存进当前静态分区。
// 预缓存是全有或全无的：任意一个资源失败即整体失败，
// 失败时丢弃半成品分区，网关不得进入就绪状态。
type Installer struct {
	client   *http.Client
	store    cache.Store
	logger   *logrus.Logger
	upstream *url.URL
}

// NewInstaller 构造 Installer，所有依赖均为必填。
func NewInstaller(client *http.Client, store cache.Store, logger *logrus.Logger, upstream *url.URL) *Installer {
	return &Installer{
		client:   client,
		store:    store,
		logger:   logger,
		upstream: upstream,
	}
}

// Install 预缓存 assets 到 staticPartition，并确保 apiPartition 存在。
// 全部成功才算安装完成；任何失败会回滚静态分区并返回错误。
func (i *Installer) Install(ctx context.Context, staticPartition, apiPartition string, assets []string) error {
	started := time.Now()

	if err := i.store.Ensure(ctx, staticPartition); err != nil {
		return fmt.Errorf("create static partition: %w", err)
	}
	if err := i.store.Ensure(ctx, apiPartition); err != nil {
		return fmt.Errorf("create api partition: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(precacheConcurrency)

	for _, asset := range assets {
		asset := asset
		group.Go(func() error {
			return i.precacheAsset(groupCtx, staticPartition, asset)
		})
	}

	if err := group.Wait(); err != nil {
		// 不允许半缓存状态，整个分区连同已写条目一起丢弃。
		if dropErr := i.store.Drop(context.WithoutCancel(ctx), staticPartition); dropErr != nil {
			i.logger.WithError(dropErr).
				WithFields(logging.LifecycleFields("install_rollback", staticPartition)).
				Warn("install_rollback_failed")
		}
		return fmt.Errorf("precache failed: %w", err)
	}

	fields := logging.LifecycleFields("install", staticPartition)
	fields["assets"] = len(assets)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	i.logger.WithFields(fields).Info("install_complete")
	return nil
}

func (i *Installer) precacheAsset(ctx context.Context, partition, asset string) error {
	target := i.upstream.ResolveReference(&url.URL{Path: asset})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", asset, err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", asset, resp.StatusCode)
	}

	locator := cache.Locator{Partition: partition, Path: asset}
	if _, err := i.store.Put(ctx, locator, resp.Body, cache.PutOptions{}); err != nil {
		return fmt.Errorf("store %s: %w", asset, err)
	}
	return nil
}

package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"
)

// 固定的通知展示参数，未显式指定时统一采用这套默认值。
const (
	DefaultNotificationIcon  = "/static/icons/icon-192.png"
	DefaultNotificationBadge = "/static/icons/badge-72.png"
)

// DefaultVibration 是通知的固定振动模式（毫秒）。
var DefaultVibration = []int{100, 50, 100}

// SyncHook 是后台同步的预留扩展点。当前实现不做任何重试，
// 但接口必须存在，后续补重试时不需要改动请求拦截的契约。
type SyncHook interface {
	Sync(ctx context.Context, tag string) error
}

// NopSyncHook 是默认的空实现。
type NopSyncHook struct{}

// Sync 直接返回 nil。
func (NopSyncHook) Sync(ctx context.Context, tag string) error { return nil }

// Notification 描述一次系统通知请求，icon/badge/振动为固定模式。
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Icon      string `json:"icon"`
	Badge     string `json:"badge"`
	Vibration []int  `json:"vibration"`
}

// Notifier 消费通知负载并请求展示，纯透传动作，不保存状态。
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier 把通知写进结构化日志，是服务端环境下的默认展示通道。
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier 构造 LogNotifier。
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify 填充固定的 icon/badge/振动参数后记录通知。
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	applyNotificationDefaults(&notification)
	n.logger.WithFields(logrus.Fields{
		"action": "notify",
		"title":  notification.Title,
		"icon":   notification.Icon,
		"badge":  notification.Badge,
	}).Info(notification.Body)
	return nil
}

func applyNotificationDefaults(n *Notification) {
	if n.Icon == "" {
		n.Icon = DefaultNotificationIcon
	}
	if n.Badge == "" {
		n.Badge = DefaultNotificationBadge
	}
	if len(n.Vibration) == 0 {
		n.Vibration = append([]int(nil), DefaultVibration...)
	}
}

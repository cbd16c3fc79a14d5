package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LaneFields 提供车道/路径/命中状态字段，供网关请求日志复用。
func LaneFields(lane, method, path string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"lane":      lane,
		"method":    method,
		"path":      path,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 提供安装/激活阶段的分区字段。
func LifecycleFields(action, partition string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"partition": partition,
	}
}

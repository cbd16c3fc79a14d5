package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<Partition>/<path>    # 实际正文
//
// 分区是独立的命名空间：静态资源分区带版本号（static-v3），API 分区只建不写。
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将响应正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，通常用于安装失败后的回滚清理。
	Remove(ctx context.Context, locator Locator) error

	// MatchAny 在所有分区中按路径查找条目，当前静态分区优先。
	// 对应离线回退时"任意分区命中即可"的语义。
	MatchAny(ctx context.Context, path string, preferred string) (*ReadResult, error)

	// Partitions 枚举当前磁盘上存在的全部分区名。
	Partitions(ctx context.Context) ([]string, error)

	// Ensure 创建空分区（若不存在），用于保留尚未写入的 API 分区。
	Ensure(ctx context.Context, partition string) error

	// Drop 整体删除一个分区及其全部条目。
	Drop(ctx context.Context, partition string) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（分区 + 相对路径），所有路径均为 URL 路径风格。
type Locator struct {
	Partition string
	Path      string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与正文 Reader，便于网关层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

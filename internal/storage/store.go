// Package storage 维护已发布帖子ID集合 (DuplicateSet) 及其持久化
package storage

import (
	"context"
	"fmt"
)

// Store 已发布ID的持久化后端
type Store interface {
	// Load 读取全部已发布ID
	Load(ctx context.Context) ([]string, error)
	// Append 持久化新发布的ID, 已存在的ID忽略
	Append(ctx context.Context, ids []string) error
	Close() error
}

// ExistingSource 远端已存在帖子ID的来源 (WordPress插件)
type ExistingSource interface {
	FetchExisting(ctx context.Context) ([]string, error)
}

// Options 存储选项
type Options struct {
	Driver string // json, sqlite, mysql, none
	Path   string // json文件路径
	DSN    string // sqlite文件或mysql DSN
}

// Open 按驱动创建存储
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "json":
		return NewJSONStore(opts.Path), nil
	case "sqlite", "mysql":
		return OpenSQLStore(ctx, opts.Driver, opts.DSN)
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", opts.Driver)
	}
}

// NopStore 不持久化, 只依赖远端同步
type NopStore struct{}

// Load 实现Store接口
func (NopStore) Load(context.Context) ([]string, error) { return nil, nil }

// Append 实现Store接口
func (NopStore) Append(context.Context, []string) error { return nil }

// Close 实现Store接口
func (NopStore) Close() error { return nil }

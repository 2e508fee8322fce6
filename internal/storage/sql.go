package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore 以数据表保存已发布ID (sqlite 或 mysql)
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore 打开数据库并建表
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	driverName := driver
	if driver == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if driver == "sqlite" {
		// sqlite只允许单写, 共用一个连接
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	q := `
CREATE TABLE IF NOT EXISTS published_threads (
  thread_id    VARCHAR(32) NOT NULL PRIMARY KEY,
  published_at TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("创建数据表失败: %w", err)
	}
	return nil
}

// Load 读取全部已发布ID
func (s *SQLStore) Load(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM published_threads ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("查询已发布ID失败: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Append 在一个事务中插入新ID, 重复ID忽略
func (s *SQLStore) Append(ctx context.Context, ids []string) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	if len(ids) == 0 {
		return nil
	}

	insert := `INSERT OR IGNORE INTO published_threads (thread_id) VALUES (?)`
	if s.driver == "mysql" {
		insert = `INSERT IGNORE INTO published_threads (thread_id) VALUES (?)`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("写入ID %s 失败: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close 关闭数据库
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

package main

import (
	"fmt"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(pages, maxThreads, batchSize int) error {
	if pages < 0 {
		return fmt.Errorf("页数不能为负数,当前值: %d", pages)
	}
	if maxThreads < 0 {
		return fmt.Errorf("帖子数不能为负数,当前值: %d", maxThreads)
	}
	if batchSize < 1 || batchSize > models.MaxBatchSize {
		return fmt.Errorf("批大小必须在1-%d之间,当前值: %d", models.MaxBatchSize, batchSize)
	}
	return nil
}

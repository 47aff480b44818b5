package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Checker 检查 MySQL 和 Redis 是否可达。
type Checker struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewChecker(db *gorm.DB, rdb *redis.Client) *Checker {
	return &Checker{db: db, rdb: rdb}
}

// Check 返回每个组件的状态，"ok" 表示正常，否则为错误信息。未配置的组件不出现在结果中。
func (c *Checker) Check(ctx context.Context) map[string]string {
	out := make(map[string]string, 2)
	if c.db != nil {
		out["mysql"] = "ok"
		sqlDB, err := c.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			out["mysql"] = err.Error()
		}
	}
	if c.rdb != nil {
		out["redis"] = "ok"
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			out["redis"] = err.Error()
		}
	}
	return out
}

package database

import (
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接。
// 状态机的条件更新依赖匹配行数，DSN 需要带上 clientFoundRows=true。
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Info("MySQL database connected successfully")
}

// AutoMigrate 创建或更新本服务写入的表。科目/单元/主题表由外部系统维护，这里只保证存在。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Subject{},
		&model.Unit{},
		&model.Topic{},
		&model.Document{},
		&model.Passage{},
		&model.TopicSummary{},
		&model.UnitSummary{},
		&model.ProcessingState{},
	)
}

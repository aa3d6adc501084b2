// Package gormstore 提供基于 GORM 的文档存储后端
// 支持 MySQL 与 SQLite，两者共用同一张 documents 表
package gormstore

import (
	"fmt"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/pkg/errorx"
)

// OpenMySQL 按配置连接 MySQL 并迁移表结构
func OpenMySQL(conf *config.MysqlConfig) (*gorm.DB, error) {
	// 格式：user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.User,
		conf.Password,
		conf.Host,
		conf.Port,
		conf.DatabaseName,
	)
	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeStoreError, "open mysql")
	}
	return migrate(db)
}

// OpenSQLite 打开（或创建）SQLite 文件并迁移表结构
// path 为 ":memory:" 时使用内存数据库
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "open sqlite %s", path)
	}
	// SQLite 单写者
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return migrate(db)
}

func migrate(db *gorm.DB) (*gorm.DB, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeStoreError, "auto migrate documents")
	}
	zap.L().Info("gorm document table ready", zap.String("dialect", db.Dialector.Name()))
	return db, nil
}

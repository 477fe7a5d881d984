// internal/pkg/database/mysql.go
package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	zlog "github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const mysqlDuplicateEntry = 1062

// Open 解析 DSN 并强制 parseTime/UTC，然后建立 gorm 连接池
func Open(dsn string) (*gorm.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := gorm.Open(gormmysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	zlog.Info().Str("addr", cfg.Addr).Str("db", cfg.DBName).Msg("✅ connected to MySQL")
	return db, nil
}

// IsDuplicateKey 判断是否违反唯一索引；index 非空时还要求错误信息命中该索引
func IsDuplicateKey(err error, index string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return false
	}
	return index == "" || strings.Contains(me.Message, index)
}

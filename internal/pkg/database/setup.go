package database

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var DB *gorm.DB

// GetDB returns the process-wide database handle.
func GetDB() *gorm.DB {
	return DB
}

func SetupDatabase() {
	driver := env.GetEnv("DB_DRIVER", DriverMySQL)

	var err error
	for i := 0; i < maxRetries; i++ {
		var db *gorm.DB
		switch driver {
		case DriverSQLite:
			db, err = OpenSQLite(env.GetEnv("DB_SQLITE_PATH", "reportfox.db"))
		default:
			db, err = OpenMySQL(mysqlDSN())
		}
		if err == nil {
			if err = AutoMigrate(db); err == nil {
				DB = db
				return
			}
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func mysqlDSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// OpenMySQL opens a MySQL/MariaDB connection.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	}), &gorm.Config{
		Logger:  gormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

// gormLogger logs every statement in dev and only warnings otherwise.
func gormLogger() logger.Interface {
	if env.IsDev() {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Warn)
}

// OpenSQLite opens a pure-Go SQLite database. Use ":memory:" for throwaway databases.
// The pool is pinned to one connection so an in-memory database survives and
// concurrent writers queue instead of failing with SQLITE_BUSY.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate creates or updates the tables of every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.PaymentRequest{},
		&models.BillingWebhookEvent{},
		&models.BillingPlanMapping{},
		&models.SubscriptionOverride{},
		&models.Report{},
	)
}

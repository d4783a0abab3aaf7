package db

import (
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shinyyama/snaplist-backend/internal/config"
	"github.com/shinyyama/snaplist-backend/internal/model"
)

// BuildDSN renders the driver DSN. INSTANCE_CONNECTION_NAME wins over
// DB_HOST and selects the Cloud SQL unix socket. DB_HOST may be a bare host,
// an absolute socket path, or an already qualified tcp(...)/unix(...) address.
func BuildDSN(cfg *config.DBConfig) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.DBName = cfg.DBName
	mc.Net, mc.Addr = address(cfg)
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func address(cfg *config.DBConfig) (network, addr string) {
	host := strings.TrimSpace(cfg.DBHost)
	switch {
	case cfg.InstanceConnectionName != "":
		return "unix", "/cloudsql/" + cfg.InstanceConnectionName
	case strings.HasPrefix(host, "tcp(") && strings.HasSuffix(host, ")"):
		return "tcp", host[len("tcp(") : len(host)-1]
	case strings.HasPrefix(host, "unix(") && strings.HasSuffix(host, ")"):
		return "unix", host[len("unix(") : len(host)-1]
	case strings.HasPrefix(host, "/"):
		return "unix", host
	default:
		return "tcp", fmt.Sprintf("%s:%s", host, cfg.DBPort)
	}
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	}
	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Item{},
		&model.ItemImage{},
		&model.ListingDraft{},
		&model.IngestionBatch{},
	)
}

package store

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"

	poolMaxOpen = 10
	poolMaxIdle = 2
)

// PGConfig defines connection options for PostgreSQL.
type PGConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Debug    bool
}

// DSN renders the connection string.
func (c PGConfig) DSN() string {
	host := c.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := c.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()
	return u.String()
}

// OpenPostgres opens a pooled gorm connection to PostgreSQL.
func OpenPostgres(cfg PGConfig) (*gorm.DB, error) {
	logMode := logger.Warn
	if cfg.Debug {
		logMode = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(poolMaxOpen)
	sqlDB.SetMaxIdleConns(poolMaxIdle)
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

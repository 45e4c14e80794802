package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"veloj/pkg/utils/config"
)

// MySQLConfig holds the connection settings for mysql.
type MySQLConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	User            string          `yaml:"user"`
	Password        string          `yaml:"password"`
	Database        string          `yaml:"database"`
	MaxOpenConns    int             `yaml:"maxOpenConns"`
	MaxIdleConns    int             `yaml:"maxIdleConns"`
	ConnMaxLifetime config.Duration `yaml:"connMaxLifetime"`
}

// ApplyDefaults fills unset fields with sensible defaults.
func (c *MySQLConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = config.Duration(30 * time.Minute)
	}
}

// NewMySQL opens a mysql connection pool and verifies connectivity.
func NewMySQL(cfg MySQLConfig) (*sql.DB, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mysql host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mysql database is required")
	}
	cfg.ApplyDefaults()

	dsnCfg := mysql.NewConfig()
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dsnCfg.User = cfg.User
	dsnCfg.Passwd = cfg.Password
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC

	conn, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return conn, nil
}

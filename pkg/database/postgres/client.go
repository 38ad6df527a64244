package pg

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

type Config struct {
	User     string
	Password string
	Host     string
	Port     string
	DbName   string

	// Zero keeps the database/sql default
	MaxOpenConnections int
	MaxIdleConnections int
}

func (c *Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DbName,
	)
}

// Open gets a DB connection pool using username/password credentials through
// the New Relic instrumented pgx driver.
func Open(config *Config) (*sql.DB, error) {
	db, err := sql.Open("nrpgx", config.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "error opening db")
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}

	// Check if the connection was successful
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error pinging db")
	}

	return db, nil
}

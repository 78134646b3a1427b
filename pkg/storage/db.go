package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// DB оборачивает соединение с Postgres; все методы репозитория висят на нём.
type DB struct {
	Conn *sql.DB
}

func NewDB(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}

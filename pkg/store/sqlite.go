package store

import (
	"database/sql"
	"errors"

	slpg "github.com/simpleledger/slpgraph/pkg"

	"github.com/mattn/go-sqlite3"
)

// interface guard ensures SQLite implements slpg.Store
var _ slpg.Store = SQLite{}

type SQLite struct {
	snapshotDB
}

// NewSQLite returns a slpg.Store that keeps snapshots in a sqlite file,
// or in memory for ":memory:".
func NewSQLite(fileName string) (SQLite, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLite{}, sqliteErr(err, "opening database")
	}
	// a pooled ":memory:" connection would each see its own database
	db.SetMaxOpenConns(1)
	// init tables / indexes
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		db.Close()
		return SQLite{}, sqliteErr(err, "creating database schema")
	}
	return SQLite{snapshotDB{db: db, name: "SQLite", rebind: keepPlaceholders, dbErr: sqliteErr}}, nil
}

func sqliteErr(err error, where string) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && (sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked) {
		return slpg.WrapErr(slpg.NotAvailable, err, "SQLite busy: %s", where)
	}
	return slpg.WrapErr(slpg.UnknownError, err, "SQLite error: %s", where)
}

package store

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	slpg "github.com/simpleledger/slpgraph/pkg"
)

const SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS snapshot (
	token_id TEXT NOT NULL PRIMARY KEY,
	genesis_txid TEXT NOT NULL,
	nodes INTEGER NOT NULL,
	updated BIGINT NOT NULL,
	body TEXT NOT NULL
);
`

// snapshotDB is the SQL shared by the SQLite and Postgres stores.
// Queries are written with '?' placeholders and rebound per driver.
type snapshotDB struct {
	db     *sql.DB
	name   string
	rebind func(string) string
	dbErr  func(err error, where string) error
}

func (s snapshotDB) SaveSnapshot(snap slpg.GraphSnapshot) error {
	if !snap.Complete {
		return slpg.NewErr(slpg.BadRequest, "%s: refusing incomplete snapshot of %s", s.name, snap.Token.TokenID)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return slpg.WrapErr(slpg.UnknownError, err, "%s: encoding snapshot of %s", s.name, snap.Token.TokenID)
	}
	_, err = s.db.Exec(s.rebind(`
INSERT INTO snapshot (token_id, genesis_txid, nodes, updated, body) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (token_id) DO UPDATE SET
	genesis_txid = excluded.genesis_txid,
	nodes = excluded.nodes,
	updated = excluded.updated,
	body = excluded.body`),
		snap.Token.TokenID, snap.Token.GenesisTxID, len(snap.Nodes), snap.Updated.Unix(), string(body))
	if err != nil {
		return s.dbErr(err, "SaveSnapshot")
	}
	return nil
}

func (s snapshotDB) LoadSnapshot(tokenID string) (slpg.GraphSnapshot, error) {
	row := s.db.QueryRow(s.rebind("SELECT body FROM snapshot WHERE token_id = ?"), tokenID)
	var body string
	err := row.Scan(&body)
	if err == sql.ErrNoRows {
		return slpg.GraphSnapshot{}, slpg.NewErr(slpg.NotFound, "no snapshot for token %s", tokenID)
	}
	if err != nil {
		return slpg.GraphSnapshot{}, s.dbErr(err, "LoadSnapshot: row.Scan")
	}
	var snap slpg.GraphSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return slpg.GraphSnapshot{}, slpg.WrapErr(slpg.UnknownError, err, "%s: decoding snapshot of %s", s.name, tokenID)
	}
	return snap, nil
}

func (s snapshotDB) ListTokens() ([]string, error) {
	rows, err := s.db.Query("SELECT token_id FROM snapshot ORDER BY token_id")
	if err != nil {
		return nil, s.dbErr(err, "ListTokens: query")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.dbErr(err, "ListTokens: rows.Scan")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbErr(err, "ListTokens: rows")
	}
	return ids, nil
}

// Defer this until shutdown
func (s snapshotDB) Close() {
	s.db.Close()
}

func keepPlaceholders(q string) string {
	return q
}

// numberPlaceholders rewrites '?' placeholders as $1, $2...
func numberPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

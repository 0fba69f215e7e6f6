package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// GroupStore is the durable mirror of the in-memory group directory. The
// directory is the canonical owner of the member sets; the store only has to
// survive restarts.
type GroupStore interface {
	LoadAllGroups() (map[string][]string, error)
	SaveGroup(name string, members []string) error
	DeleteGroup(name string) error
	Close() error
}

type DB struct {
	conn *sql.DB
}

// New opens (and if needed creates) the sqlite database at path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	// Same shape as the desktop client's database, so an existing file keeps
	// working: one row per group, members comma-joined.
	query := `CREATE TABLE IF NOT EXISTS groups (
		group_name TEXT PRIMARY KEY,
		members TEXT NOT NULL
	)`

	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("init groups table: %w", err)
	}
	return nil
}

// LoadAllGroups reads every persisted group, keyed by name.
func (db *DB) LoadAllGroups() (map[string][]string, error) {
	rows, err := db.conn.Query("SELECT group_name, members FROM groups")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make(map[string][]string)
	for rows.Next() {
		var name, membersStr string
		if err := rows.Scan(&name, &membersStr); err != nil {
			return nil, err
		}

		var members []string
		for _, m := range strings.Split(membersStr, ",") {
			if m != "" {
				members = append(members, m)
			}
		}
		groups[name] = members
	}

	return groups, rows.Err()
}

// SaveGroup upserts a group's member list.
func (db *DB) SaveGroup(name string, members []string) error {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO groups (group_name, members) VALUES (?, ?)",
		name, strings.Join(sorted, ","),
	)
	return err
}

// DeleteGroup removes a group; deleting an absent group is not an error.
func (db *DB) DeleteGroup(name string) error {
	_, err := db.conn.Exec("DELETE FROM groups WHERE group_name = ?", name)
	return err
}

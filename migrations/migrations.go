// Package migrations holds the schema steps of the local key-value store.
// Each numbered file registers its step from init().
package migrations

import (
	"fmt"
	"log"
	"sort"

	"github.com/pocketbase/dbx"
)

// Migration is one reversible schema step
type Migration struct {
	Version int64
	Name    string
	Up      func(db dbx.Builder) error
	Down    func(db dbx.Builder) error
}

var registry []Migration

// Register adds a migration; called from init() of the numbered files
func Register(version int64, name string, up, down func(db dbx.Builder) error) {
	for _, m := range registry {
		if m.Version == version {
			panic(fmt.Sprintf("migration %d registered twice", version))
		}
	}
	registry = append(registry, Migration{Version: version, Name: name, Up: up, Down: down})
	sort.Slice(registry, func(i, j int) bool { return registry[i].Version < registry[j].Version })
}

// All returns the registered migrations in version order
func All() []Migration {
	out := make([]Migration, len(registry))
	copy(out, registry)
	return out
}

func ensureTable(db *dbx.DB) error {
	_, err := db.NewQuery(`CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name    TEXT NOT NULL,
		applied INTEGER NOT NULL
	)`).Execute()
	return err
}

// Applied lists the versions already applied, oldest first
func Applied(db *dbx.DB) ([]int64, error) {
	if err := ensureTable(db); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	var versions []int64
	if err := db.NewQuery("SELECT version FROM _migrations ORDER BY version").Column(&versions); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return versions, nil
}

// Up applies every pending migration, each in its own transaction
func Up(db *dbx.DB) ([]string, error) {
	done, err := Applied(db)
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]bool, len(done))
	for _, v := range done {
		applied[v] = true
	}

	var names []string
	for _, m := range registry {
		if applied[m.Version] {
			continue
		}
		m := m
		err := db.Transactional(func(tx *dbx.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.NewQuery("INSERT INTO _migrations (version, name, applied) VALUES ({:version}, {:name}, strftime('%s','now'))").
				Bind(dbx.Params{"version": m.Version, "name": m.Name}).
				Execute()
			return err
		})
		if err != nil {
			return names, fmt.Errorf("migration %d_%s: %w", m.Version, m.Name, err)
		}
		log.Printf("🗄️  Applied migration %d_%s", m.Version, m.Name)
		names = append(names, m.Name)
	}
	return names, nil
}

// Down reverts the most recent migration; it returns "" when none is applied
func Down(db *dbx.DB) (string, error) {
	done, err := Applied(db)
	if err != nil {
		return "", err
	}
	if len(done) == 0 {
		return "", nil
	}
	latest := done[len(done)-1]

	for _, m := range registry {
		if m.Version != latest {
			continue
		}
		m := m
		err := db.Transactional(func(tx *dbx.Tx) error {
			if err := m.Down(tx); err != nil {
				return err
			}
			_, err := tx.NewQuery("DELETE FROM _migrations WHERE version = {:version}").
				Bind(dbx.Params{"version": m.Version}).
				Execute()
			return err
		})
		if err != nil {
			return "", fmt.Errorf("revert %d_%s: %w", m.Version, m.Name, err)
		}
		log.Printf("🗄️  Reverted migration %d_%s", m.Version, m.Name)
		return m.Name, nil
	}
	return "", fmt.Errorf("applied migration %d is not registered", latest)
}

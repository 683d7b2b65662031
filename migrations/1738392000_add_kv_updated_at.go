package migrations

import (
	"github.com/pocketbase/dbx"
)

func init() {
	Register(1738392000, "add_kv_updated_at", func(db dbx.Builder) error {
		_, err := db.NewQuery("ALTER TABLE kv ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0").Execute()
		return err
	}, func(db dbx.Builder) error {
		_, err := db.NewQuery("ALTER TABLE kv DROP COLUMN updated_at").Execute()
		return err
	})
}

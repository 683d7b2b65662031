package migrations

import (
	"github.com/pocketbase/dbx"
)

func init() {
	Register(1738391000, "create_kv_table", func(db dbx.Builder) error {
		_, err := db.NewQuery(`CREATE TABLE kv (
			key   TEXT PRIMARY KEY NOT NULL,
			value TEXT NOT NULL
		)`).Execute()
		return err
	}, func(db dbx.Builder) error {
		_, err := db.NewQuery("DROP TABLE kv").Execute()
		return err
	})
}

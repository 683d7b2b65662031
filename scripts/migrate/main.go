package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"qr-attendance-bot/config"
	"qr-attendance-bot/migrations"
)

func usage() {
	fmt.Println("Usage: migrate [up|down|status]")
	fmt.Println("  up      apply all pending migrations (default)")
	fmt.Println("  down    revert the latest applied migration")
	fmt.Println("  status  list migrations and whether they are applied")
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	log.Println("🔧 Local Store Migration")
	log.Println("==================================================")
	log.Printf("📍 SQLite file: %s\n\n", cfg.StorePath)

	db, err := dbx.Open("sqlite", cfg.StorePath)
	if err != nil {
		log.Fatalf("❌ Cannot open store: %v", err)
	}
	defer db.Close()

	switch cmd {
	case "up":
		applied, err := migrations.Up(db)
		if err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		if len(applied) == 0 {
			log.Println("✅ Nothing to apply, store is up to date")
			return
		}
		for _, name := range applied {
			log.Printf("   • %s", name)
		}
		log.Printf("🎉 Applied %d migration(s)", len(applied))

	case "down":
		name, err := migrations.Down(db)
		if err != nil {
			log.Fatalf("❌ Revert failed: %v", err)
		}
		if name == "" {
			log.Println("⚠️  No applied migrations to revert")
			return
		}
		log.Printf("✅ Reverted %s", name)

	case "status":
		applied, err := migrations.Applied(db)
		if err != nil {
			log.Fatalf("❌ Cannot read migration state: %v", err)
		}
		done := make(map[int64]bool, len(applied))
		for _, v := range applied {
			done[v] = true
		}
		for _, m := range migrations.All() {
			mark := "⏳ pending"
			if done[m.Version] {
				mark = "✅ applied"
			}
			log.Printf("   %d_%s  %s", m.Version, m.Name, mark)
		}

	default:
		usage()
		os.Exit(2)
	}
}

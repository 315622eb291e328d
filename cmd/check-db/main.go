package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"rps-backend/internal/config"
)

// Connectivity and schema sanity check for the wager database. Run it
// after deploying migrations, before pointing the server at the DSN.
func main() {
	fmt.Println("🔍 Verifying database connection and wager schema...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	for _, table := range []string{"rps_wagers", "escrow_accounts"} {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		if !exists {
			fmt.Printf("❌ Table %s does not exist - run the server once to migrate\n", table)
			continue
		}
		fmt.Printf("✅ Table %s exists\n", table)
	}

	// Escrow secrets are sealed as hex(iv):hex(ciphertext); anything
	// short of that cannot be a valid ciphertext.
	var count int
	err = sqlDB.QueryRow(`
		SELECT COUNT(*) FROM escrow_accounts WHERE length(encrypted_secret) < 32
	`).Scan(&count)
	if err == nil && count > 0 {
		fmt.Printf("⚠️ Found %d escrow accounts with suspiciously short secrets\n", count)
	}

	fmt.Println("✅ Database verification complete")
}

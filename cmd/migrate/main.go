package main

import (
	"context"
	"fmt"
	"log"

	"notesync-be/internal/config"
	"notesync-be/internal/model"
	"notesync-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	ctx := context.Background()

	// 1. Primary store
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	defer database.Close(db)

	log.Println("Step 1: Setting up extensions...")
	for _, sql := range []string{`CREATE EXTENSION IF NOT EXISTS pgcrypto;`} {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}
	if err := database.EnsureVectorExtension(ctx, db); err != nil {
		log.Fatalf("Error: pgvector is not available: %v", err)
	}

	log.Println("Step 2: Migrating records...")
	if err := db.AutoMigrate(&model.Record{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}
	// AutoMigrate cannot size the vector column or build the ANN index
	postMigrationSQL := []string{
		fmt.Sprintf(`ALTER TABLE records ALTER COLUMN embedding TYPE vector(%d);`, cfg.Vector.Dimension),
		`CREATE INDEX IF NOT EXISTS idx_records_embedding ON records USING hnsw (embedding vector_cosine_ops);`,
		`CREATE INDEX IF NOT EXISTS idx_records_tenant_modified ON records (tenant_id, last_modified);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	// 2. Ledgers, possibly on their own database
	ledgerDB := db
	if cfg.LedgerDSN() != cfg.Database.Connection {
		if ledgerDB, err = database.NewGormDBFromDSN(cfg.LedgerDSN(), true); err != nil {
			log.Fatal("Error: Failed to connect to ledger database:", err)
		}
		defer database.Close(ledgerDB)
		if err := ledgerDB.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
			log.Printf("Warn: Failed to enable pgcrypto on ledger database: %v", err)
		}
	}
	migrateLedgers(ledgerDB)

	log.Println("Success: Database migration completed.")
}

func migrateLedgers(db *gorm.DB) {
	log.Println("Step 3: Migrating tombstones, retry queue and long jobs...")
	if err := db.AutoMigrate(&model.Tombstone{}, &model.RetryEntry{}, &model.LongJob{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}
}

package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fragcoach/internal/config"
	"fragcoach/internal/memory"
	"fragcoach/internal/operator"
)

var DB *gorm.DB

// Init opens the relational store and migrates the schema. Postgres is used
// when a DSN is configured; otherwise a local SQLite file keeps a
// single-machine install dependency-free.
func Init(cfg *config.Config) error {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.Postgres.DSN != "" {
		db, err = gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	} else {
		path := cfg.SQLite.Path
		if path == "" {
			path = "fragcoach.db"
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	}
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&operator.Operator{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&memory.PlayerProfile{}, &memory.CoachingRecord{}, &memory.SnapshotRecord{}); err != nil {
		return err
	}

	DB = db
	log.Printf("Database connected and migrated")
	return nil
}

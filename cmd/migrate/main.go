// Command migrate applies the schema and reports on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"socialfeed/internal/config"
	"socialfeed/internal/database"
	"socialfeed/internal/models"
	"socialfeed/internal/repository"
	"socialfeed/internal/service"

	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|status|reconcile>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(db.WithContext(ctx)); err != nil {
			return err
		}
		log.Println("schema applied")
	case "status":
		return status(db.WithContext(ctx))
	case "reconcile":
		stats, err := service.NewReconciler(repository.NewStore(db), 0).RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		log.Printf("reconciled %d users: %d dropped, %d relinked", stats.Users, stats.Dropped, stats.Relinked)
	default:
		return usage()
	}
	return nil
}

func status(db *gorm.DB) error {
	m := db.Migrator()
	for _, table := range []struct {
		name  string
		model any
	}{
		{"users", &models.User{}},
		{"posts", &models.Post{}},
	} {
		if !m.HasTable(table.model) {
			log.Printf("%s: missing", table.name)
			continue
		}
		var count int64
		if err := db.Model(table.model).Count(&count).Error; err != nil {
			return fmt.Errorf("count %s: %w", table.name, err)
		}
		log.Printf("%s: present (%d rows)", table.name, count)
	}
	return nil
}

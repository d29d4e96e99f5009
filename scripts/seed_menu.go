package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"foodtruck/internal/config"
	"foodtruck/internal/database"
	"foodtruck/internal/ledger"
	"foodtruck/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type MenuConfig struct {
	Items []config.MenuSeedItem `yaml:"items"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		menuPath = flag.String("menu", "configs/menu.yaml", "path to menu.yaml")
		dbPath   = flag.String("db", "./data/ledger.db", "path to sqlite db")
		owner    = flag.String("owner", "", "owner address")
	)
	flag.Parse()

	if *owner == "" {
		return fmt.Errorf("owner address is required")
	}

	data, err := os.ReadFile(*menuPath)
	if err != nil {
		return fmt.Errorf("read menu: %w", err)
	}
	var cfg MenuConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse menu: %w", err)
	}
	if len(cfg.Items) == 0 {
		return fmt.Errorf("no items in yaml")
	}
	if err = config.ValidateSeedMenu(cfg.Items); err != nil {
		return fmt.Errorf("invalid menu: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	l, err := ledger.New(db, *owner, nil, &logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	items := make([]models.MenuItem, 0, len(cfg.Items))
	for _, it := range cfg.Items {
		items = append(items, models.MenuItem{
			Name:        it.Name,
			Price:       it.Price,
			Inventory:   it.Inventory,
			ItemType:    it.ItemType,
			IsAvailable: true,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = l.SeedMenu(ctx, items); err != nil {
		return fmt.Errorf("seed menu: %w", err)
	}

	fmt.Printf("done: catalog has %d items\n", len(l.MenuItems()))
	return nil
}

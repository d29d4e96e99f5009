package config

import (
	"os"
	"path/filepath"
	"testing"

	"foodtruck/internal/models"

	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
owner:
  address: "0x417E6D64F28bd6FA5D00D757976c9bCF87D0cC3E"
database:
  path: "test.db"
api:
  enabled: true
  api_keys: []
seed_menu:
  - name: "Cheeseburger"
    price: 10000000000000000
    inventory: 20
    item_type: 0
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// address is normalized to lowercase
	if cfg.Owner.Address != "0x417e6d64f28bd6fa5d00d757976c9bcf87d0cc3e" {
		t.Errorf("unexpected owner address: %s", cfg.Owner.Address)
	}

	if len(cfg.SeedMenu) != 1 || cfg.SeedMenu[0].Name != "Cheeseburger" {
		t.Errorf("expected 1 seed item named Cheeseburger")
	}

	if cfg.API.Port != 8080 {
		t.Errorf("expected default api port 8080, got %d", cfg.API.Port)
	}

	if !cfg.API.Auth.Enabled {
		t.Errorf("expected auth enabled by default when api is enabled")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Owner:    OwnerConfig{Address: "0xabc"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: false,
		},
		{
			name: "missing owner",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			cfg: Config{
				Owner: OwnerConfig{Address: "0xabc"},
			},
			wantErr: true,
		},
		{
			name: "api key without address",
			cfg: Config{
				Owner:    OwnerConfig{Address: "0xabc"},
				Database: DatabaseConfig{Path: "path"},
				API: APIConfig{
					Auth: APIAuthConfig{
						APIKeys: []APIClientKey{{Key: "k1", Name: "client"}},
					},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSeedMenu(t *testing.T) {
	tests := []struct {
		name    string
		items   []MenuSeedItem
		wantErr bool
	}{
		{
			name:    "valid",
			items:   []MenuSeedItem{{Name: "Soda", Price: 2, Inventory: 50, ItemType: models.ItemTypeDrink}},
			wantErr: false,
		},
		{
			name:    "empty name",
			items:   []MenuSeedItem{{Name: "  ", Price: 2, Inventory: 50, ItemType: models.ItemTypeDrink}},
			wantErr: true,
		},
		{
			name:    "negative price",
			items:   []MenuSeedItem{{Name: "Soda", Price: -1, Inventory: 50, ItemType: models.ItemTypeDrink}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			items:   []MenuSeedItem{{Name: "Soda", Price: 2, Inventory: 50, ItemType: models.ItemType(9)}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeedMenu(tt.items)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSeedMenu() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestShippedMenuFile(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "configs", "menu.yaml"))
	if err != nil {
		t.Fatalf("read shipped menu: %v", err)
	}

	var menu struct {
		Items []MenuSeedItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &menu); err != nil {
		t.Fatalf("unmarshal shipped menu: %v", err)
	}

	if len(menu.Items) != 9 {
		t.Fatalf("expected 9 seed items, got %d", len(menu.Items))
	}
	if err := ValidateSeedMenu(menu.Items); err != nil {
		t.Fatalf("shipped menu does not validate: %v", err)
	}

	first := menu.Items[0]
	if first.Name != "Cheeseburger" || first.Price != 10000000000000000 || first.Inventory != 20 || first.ItemType != models.ItemTypeFood {
		t.Errorf("unexpected first item: %+v", first)
	}
	last := menu.Items[8]
	if last.Name != "Chocolate Chip Cookie" || last.ItemType != models.ItemTypeDessert {
		t.Errorf("unexpected last item: %+v", last)
	}
}

package models

import (
	"fmt"
	"time"
)

// ItemType is the menu category of an item.
type ItemType int64

const (
	ItemTypeFood    ItemType = 0
	ItemTypeDrink   ItemType = 1
	ItemTypeDessert ItemType = 2
)

func (t ItemType) Valid() bool {
	return t == ItemTypeFood || t == ItemTypeDrink || t == ItemTypeDessert
}

func (t ItemType) String() string {
	switch t {
	case ItemTypeFood:
		return "food"
	case ItemTypeDrink:
		return "drink"
	case ItemTypeDessert:
		return "dessert"
	default:
		return fmt.Sprintf("unknown(%d)", int64(t))
	}
}

// ParseItemType maps a wire name to a category.
func ParseItemType(s string) (ItemType, error) {
	switch s {
	case "food":
		return ItemTypeFood, nil
	case "drink":
		return ItemTypeDrink, nil
	case "dessert":
		return ItemTypeDessert, nil
	default:
		return 0, fmt.Errorf("unknown item type %q", s)
	}
}

// MenuItem is a catalog entry. ID is the dense zero-based index assigned at
// creation time; it is never reused or reordered.
type MenuItem struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Price       int64     `yaml:"price" json:"price"`
	Inventory   int64     `yaml:"inventory" json:"inventory"`
	ItemType    ItemType  `yaml:"item_type" json:"item_type"`
	IsAvailable bool      `yaml:"is_available" json:"is_available"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

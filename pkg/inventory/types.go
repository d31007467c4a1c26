package inventory

import "time"

// Item is a stock line held on site.
type Item struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku,omitempty"`
	Category    string    `json:"category"`
	Quantity    int       `json:"quantity"`
	Unit        string    `json:"unit,omitempty"`
	MinQuantity int       `json:"minQuantity"`
	UnitCost    int64     `json:"unitCost"`
	Location    string    `json:"location,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Low reports whether the item is at or below its reorder level.
func (i Item) Low() bool {
	return i.Quantity <= i.MinQuantity
}

// Value is quantity times unit cost.
func (i Item) Value() int64 {
	return int64(i.Quantity) * i.UnitCost
}

// Input describes a new item.
type Input struct {
	Name        string
	SKU         string
	Category    string
	Quantity    int
	Unit        string
	MinQuantity int
	UnitCost    int64
	Location    string
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	SKU         *string
	Category    *string
	Quantity    *int
	Unit        *string
	MinQuantity *int
	UnitCost    *int64
	Location    *string
}

func (p Patch) apply(i Item) Item {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.SKU != nil {
		i.SKU = *p.SKU
	}
	if p.Category != nil {
		i.Category = *p.Category
	}
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		i.Unit = *p.Unit
	}
	if p.MinQuantity != nil {
		i.MinQuantity = *p.MinQuantity
	}
	if p.UnitCost != nil {
		i.UnitCost = *p.UnitCost
	}
	if p.Location != nil {
		i.Location = *p.Location
	}
	return i
}

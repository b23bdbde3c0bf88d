package models

import (
	"time"

	"gorm.io/datatypes"
)

// Product is the slice of the catalog the bulk handlers act on.
type Product struct {
	ID          uint              `gorm:"primaryKey;autoIncrement"`
	CatalogID   uint              `gorm:"not null;index;uniqueIndex:idx_products_catalog_code,priority:1"`
	Code        string            `gorm:"type:varchar(60);not null;uniqueIndex:idx_products_catalog_code,priority:2"`
	Description string            `gorm:"type:text;not null"`
	NCM         string            `gorm:"column:ncm;type:varchar(8);not null;index"`
	Status      string            `gorm:"type:varchar(20);not null;default:'DRAFT'"`
	Attributes  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CatalogRepository is the minimal product catalog the job handlers act on.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func applyProductFilter(q *gorm.DB, f dto.ProductFilter) *gorm.DB {
	if f.CatalogID != 0 {
		q = q.Where("catalog_id = ?", f.CatalogID)
	}
	if f.NCM != "" {
		q = q.Where("ncm = ?", f.NCM)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(code) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	return q
}

// ResolveSelection turns a bulk selection into the ids of existing
// products, in ascending order.
func (r *CatalogRepository) ResolveSelection(ctx context.Context, sel dto.Selection) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})

	if sel.AllFiltered {
		q = applyProductFilter(q, sel.Filters)
		if len(sel.DeselectedIDs) > 0 {
			q = q.Where("id NOT IN ?", sel.DeselectedIDs)
		}
	} else {
		if len(sel.SelectedIDs) == 0 {
			return nil, nil
		}
		q = q.Where("id IN ?", sel.SelectedIDs)
	}

	var ids []uint
	if err := q.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("resolve selection: %w", err)
	}
	return ids, nil
}

// DeleteProducts removes the given products and reports how many existed.
func (r *CatalogRepository) DeleteProducts(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Product{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete products: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AssignAttributes merges attrs into each product. Products that already
// carry every value are left untouched and reported as skipped.
func (r *CatalogRepository) AssignAttributes(ctx context.Context, ids []uint, attrs map[string]string) (updated, skipped int, err error) {
	err = r.eachProduct(ctx, r.db.WithContext(ctx).Where("id IN ?", ids), func(tx *gorm.DB, p *models.Product) error {
		merged := cloneAttributes(p.Attributes)
		for k, v := range attrs {
			merged[k] = v
		}
		if maps.Equal(stringify(merged), stringify(p.Attributes)) {
			skipped++
			return nil
		}
		if err := tx.Model(p).Update("attributes", merged).Error; err != nil {
			return fmt.Errorf("update product attributes: %w", err)
		}
		updated++
		return nil
	})
	return updated, skipped, err
}

// AdjustStructure reconciles the attributes of the given products: required
// keys are added empty when missing and removed keys are dropped. It reports
// how many products changed.
func (r *CatalogRepository) AdjustStructure(ctx context.Context, ids []uint, required, removed []string) (adjusted int, err error) {
	err = r.eachProduct(ctx, r.db.WithContext(ctx).Where("id IN ?", ids), func(tx *gorm.DB, p *models.Product) error {
		next := cloneAttributes(p.Attributes)
		for _, k := range required {
			if _, ok := next[k]; !ok {
				next[k] = ""
			}
		}
		for _, k := range removed {
			delete(next, k)
		}
		if maps.Equal(stringify(next), stringify(p.Attributes)) {
			return nil
		}

		if err := tx.Model(p).Update("attributes", next).Error; err != nil {
			return fmt.Errorf("adjust product structure: %w", err)
		}
		adjusted++
		return nil
	})
	return adjusted, err
}

// UpsertProduct inserts p or updates the product with the same catalog and
// code. It reports whether a row was created.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *models.Product) (bool, error) {
	var existing models.Product
	err := r.db.WithContext(ctx).
		Where("catalog_id = ? AND code = ?", p.CatalogID, p.Code).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
			return false, fmt.Errorf("create product: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("find product: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"description": p.Description,
		"ncm":         p.NCM,
	}).Error; err != nil {
		return false, fmt.Errorf("update product: %w", err)
	}
	p.ID = existing.ID
	return false, nil
}

// ListForExport streams the products matching f to fn in id order, batch
// rows at a time.
func (r *CatalogRepository) ListForExport(ctx context.Context, f dto.ProductFilter, batch int, fn func([]models.Product) error) error {
	var products []models.Product
	res := applyProductFilter(r.db.WithContext(ctx).Model(&models.Product{}), f).
		FindInBatches(&products, batch, func(_ *gorm.DB, _ int) error {
			return fn(products)
		})
	if res.Error != nil {
		return fmt.Errorf("list products for export: %w", res.Error)
	}
	return nil
}

// eachProduct loads the products selected by q and hands them one by one to
// fn inside a single transaction.
func (r *CatalogRepository) eachProduct(ctx context.Context, q *gorm.DB, fn func(*gorm.DB, *models.Product) error) error {
	var products []models.Product
	if err := q.Order("id ASC").Find(&products).Error; err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range products {
			if err := fn(tx, &products[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func cloneAttributes(attrs datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(attrs))
	maps.Copy(out, attrs)
	return out
}

func stringify(attrs datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = fmt.Sprint(v)
	}
	return out
}

package cachedb

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blobmirror/blobmirror/stoerr"
)

// UpsertContainer inserts or replaces the container record. Existing
// aggregate columns are preserved; they are owned by RefreshContainerAggregates.
func (d *DB) UpsertContainer(ctx context.Context, c *Container) error {
	err := d.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"e_tag", "last_modified", "default_encryption_scope", "public_access",
			"has_legal_hold", "has_immutability_policy", "metadata_json",
		}),
	}).Create(c).Error

	return errors.Wrap(err, "error upserting container")
}

// GetContainer returns the cached container record or a NotFound error.
func (d *DB) GetContainer(ctx context.Context, name string) (*Container, error) {
	var c Container

	if err := d.db.WithContext(ctx).First(&c, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stoerr.NotFound(name)
		}

		return nil, errors.Wrap(err, "error reading container")
	}

	return &c, nil
}

// DeleteContainer removes the container record and all blob records it owns.
// Deleting an absent container is not an error.
func (d *DB) DeleteContainer(ctx context.Context, name string) error {
	if err := d.db.WithContext(ctx).Where("container_name = ?", name).Delete(&Blob{}).Error; err != nil {
		return errors.Wrap(err, "error deleting container blobs")
	}

	err := d.db.WithContext(ctx).Where("name = ?", name).Delete(&Container{}).Error

	return errors.Wrap(err, "error deleting container")
}

// ListContainers returns cached containers ordered by name, optionally
// filtered by name prefix, with limit/offset paging. A limit of zero means
// no limit.
func (d *DB) ListContainers(ctx context.Context, prefix string, limit, offset int) ([]Container, error) {
	q := d.db.WithContext(ctx).Order("name")

	if prefix != "" {
		q = q.Where("name LIKE ? ESCAPE '\\'", likePrefix(prefix))
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	if offset > 0 {
		q = q.Offset(offset)
	}

	var result []Container
	if err := q.Find(&result).Error; err != nil {
		return nil, errors.Wrap(err, "error listing containers")
	}

	return result, nil
}

// ContainerNames returns the names of all cached containers.
func (d *DB) ContainerNames(ctx context.Context) ([]string, error) {
	var names []string

	if err := d.db.WithContext(ctx).Model(&Container{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, errors.Wrap(err, "error listing container names")
	}

	return names, nil
}

// RefreshContainerAggregates recomputes the blob count and total size of the
// named container from its current blob records.
func (d *DB) RefreshContainerAggregates(ctx context.Context, name string) error {
	var agg struct {
		N     int64
		Total int64
	}

	err := d.db.WithContext(ctx).Model(&Blob{}).
		Where("container_name = ?", name).
		Select("COUNT(*) AS n, COALESCE(SUM(content_length), 0) AS total").
		Scan(&agg).Error
	if err != nil {
		return errors.Wrap(err, "error computing container aggregates")
	}

	err = d.db.WithContext(ctx).Model(&Container{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{"blob_count": agg.N, "total_size": agg.Total}).Error

	return errors.Wrap(err, "error storing container aggregates")
}

// likePrefix converts a literal prefix into a LIKE pattern, escaping LIKE
// metacharacters in the input.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+2)

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}

		escaped = append(escaped, c)
	}

	return string(escaped) + "%"
}

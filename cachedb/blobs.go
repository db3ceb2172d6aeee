package cachedb

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

// UpsertBlob inserts or replaces the blob record keyed by (container, name).
func (d *DB) UpsertBlob(ctx context.Context, b *Blob) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "container_name"}, {Name: "name"}},
		UpdateAll: true,
	}).Create(b).Error

	return errors.Wrap(err, "error upserting blob")
}

// GetBlob returns the cached blob record or a NotFound error.
func (d *DB) GetBlob(ctx context.Context, container, name string) (*Blob, error) {
	var b Blob

	err := d.db.WithContext(ctx).First(&b, "container_name = ? AND name = ?", container, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stoerr.NotFound(remote.BlobResource(container, name))
		}

		return nil, errors.Wrap(err, "error reading blob")
	}

	return &b, nil
}

// DeleteBlob removes the blob record. Deleting an absent blob is not an error.
func (d *DB) DeleteBlob(ctx context.Context, container, name string) error {
	err := d.db.WithContext(ctx).
		Where("container_name = ? AND name = ?", container, name).
		Delete(&Blob{}).Error

	return errors.Wrap(err, "error deleting blob")
}

// ListBlobs returns cached blobs of a container ordered by name, optionally
// filtered by name prefix, with limit/offset paging. A limit of zero means
// no limit.
func (d *DB) ListBlobs(ctx context.Context, container, prefix string, limit, offset int) ([]Blob, error) {
	q := d.db.WithContext(ctx).Where("container_name = ?", container).Order("name")

	if prefix != "" {
		q = q.Where("name LIKE ? ESCAPE '\\'", likePrefix(prefix))
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	if offset > 0 {
		q = q.Offset(offset)
	}

	var result []Blob
	if err := q.Find(&result).Error; err != nil {
		return nil, errors.Wrap(err, "error listing blobs")
	}

	return result, nil
}

package cachedb

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blobmirror/blobmirror/stoerr"
)

// CreateUpload persists a new upload session record.
func (d *DB) CreateUpload(ctx context.Context, u *Upload) error {
	err := d.db.WithContext(ctx).Omit(clause.Associations).Create(u).Error

	return errors.Wrap(err, "error creating upload session")
}

// GetUpload returns the upload session record or a NotFound error.
func (d *DB) GetUpload(ctx context.Context, id string) (*Upload, error) {
	var u Upload

	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stoerr.NotFound("upload session " + id)
		}

		return nil, errors.Wrap(err, "error reading upload session")
	}

	return &u, nil
}

// TouchUpload refreshes the session's last-activity timestamp.
func (d *DB) TouchUpload(ctx context.Context, id, lastActivityAt string) error {
	err := d.db.WithContext(ctx).Model(&Upload{}).
		Where("id = ?", id).
		Update("last_activity_at", lastActivityAt).Error

	return errors.Wrap(err, "error touching upload session")
}

// DeleteUpload removes the session record and its staged block records.
// Deleting an absent session is not an error.
func (d *DB) DeleteUpload(ctx context.Context, id string) error {
	if err := d.db.WithContext(ctx).Where("upload_id = ?", id).Delete(&UploadBlock{}).Error; err != nil {
		return errors.Wrap(err, "error deleting upload blocks")
	}

	err := d.db.WithContext(ctx).Where("id = ?", id).Delete(&Upload{}).Error

	return errors.Wrap(err, "error deleting upload session")
}

// ListUploads returns all upload session records, oldest activity first.
func (d *DB) ListUploads(ctx context.Context) ([]Upload, error) {
	var result []Upload

	if err := d.db.WithContext(ctx).Order("last_activity_at").Find(&result).Error; err != nil {
		return nil, errors.Wrap(err, "error listing upload sessions")
	}

	return result, nil
}

// UpsertUploadBlock inserts or replaces the block record for (session, block
// id), matching the remote store's block-staging semantics where re-staging a
// block id overwrites the prior block.
func (d *DB) UpsertUploadBlock(ctx context.Context, b *UploadBlock) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upload_id"}, {Name: "block_id"}},
		UpdateAll: true,
	}).Create(b).Error

	return errors.Wrap(err, "error upserting upload block")
}

// ListUploadBlocks returns the staged blocks of a session in staging order
// (upload time, then block id for blocks staged within the same instant).
func (d *DB) ListUploadBlocks(ctx context.Context, id string) ([]UploadBlock, error) {
	var result []UploadBlock

	err := d.db.WithContext(ctx).
		Where("upload_id = ?", id).
		Order("uploaded_at, block_id").
		Find(&result).Error
	if err != nil {
		return nil, errors.Wrap(err, "error listing upload blocks")
	}

	return result, nil
}

// Package cachedb implements the local relational mirror of the remote
// store, used for fast listing, paging and aggregation queries. It holds
// container, blob and upload-session records in an embedded sqlite database.
package cachedb

import (
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB provides access to the cache store. All mutations are atomic single-row
// upserts or deletes; cross-row consistency is maintained by the
// write-through repository and the reconciliation engine.
type DB struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the cache database at the given path.
// Pass ":memory:" for an ephemeral in-memory database.
func Open(path string) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error opening cache database")
	}

	if err := gdb.AutoMigrate(&Container{}, &Blob{}, &Upload{}, &UploadBlock{}); err != nil {
		return nil, errors.Wrap(err, "error migrating cache schema")
	}

	return &DB{db: gdb}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return errors.Wrap(err, "error getting underlying database")
	}

	return errors.Wrap(sqlDB.Close(), "error closing cache database")
}

package cachedb

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/remote"
)

// timeLayout is fixed-width ISO-8601 UTC so that string ordering of persisted
// timestamps equals time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in the persisted timestamp format. The zero time
// renders as an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(timeLayout)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "invalid cached timestamp")
	}

	return t, nil
}

// EncodeDoc serializes a metadata/tag map as a key-value document. Equal
// maps always encode identically.
func EncodeDoc(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}

	// map keys marshal in sorted order, so equal maps encode identically.
	b, _ := json.Marshal(m) //nolint:errcheck

	return string(b)
}

// DecodeDoc is the inverse of EncodeDoc.
func DecodeDoc(s string) map[string]string {
	if s == "" {
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}

	return m
}

// Container mirrors one remote container plus aggregates derived from its
// cached blobs.
type Container struct {
	Name                   string `gorm:"primaryKey;size:63"`
	ETag                   string `gorm:"size:128"`
	LastModified           string `gorm:"size:64;index"`
	BlobCount              int64
	TotalSize              int64
	DefaultEncryptionScope string `gorm:"size:128"`
	PublicAccess           string `gorm:"size:32"`
	HasLegalHold           bool
	HasImmutabilityPolicy  bool
	MetadataJSON           string `gorm:"type:text"`

	Blobs []Blob `gorm:"foreignKey:ContainerName;references:Name;constraint:OnDelete:CASCADE"`
}

// Metadata returns the decoded metadata map.
func (c *Container) Metadata() map[string]string {
	return DecodeDoc(c.MetadataJSON)
}

// Blob mirrors one remote blob. It is owned by exactly one Container.
type Blob struct {
	ContainerName          string `gorm:"primaryKey;size:63"`
	Name                   string `gorm:"primaryKey;size:1024"`
	ETag                   string `gorm:"size:128;index"`
	BlobType               string `gorm:"size:32"`
	ContentType            string `gorm:"size:255;index"`
	ContentEncoding        string `gorm:"size:64"`
	ContentLanguage        string `gorm:"size:64"`
	ContentLength          int64  `gorm:"index"`
	CreatedAt              string `gorm:"size:64"`
	LastModified           string `gorm:"size:64;index"`
	ExpiresAt              string `gorm:"size:64"`
	LastAccessedAt         string `gorm:"size:64"`
	LegalHold              bool
	RemainingRetentionDays int32
	MetadataJSON           string `gorm:"type:text"`
	TagsJSON               string `gorm:"type:text"`
}

// Metadata returns the decoded metadata map.
func (b *Blob) Metadata() map[string]string {
	return DecodeDoc(b.MetadataJSON)
}

// Tags returns the decoded tags map.
func (b *Blob) Tags() map[string]string {
	return DecodeDoc(b.TagsJSON)
}

// SameState reports whether two records describe the same state of the same
// logical blob, i.e. they agree on (container, name, etag).
func (b *Blob) SameState(other *Blob) bool {
	return other != nil &&
		b.ContainerName == other.ContainerName &&
		b.Name == other.Name &&
		b.ETag == other.ETag
}

// Upload tracks one chunked upload in progress. It exists only while the
// upload is neither committed nor cancelled.
type Upload struct {
	ID              string `gorm:"primaryKey;size:64"`
	ContainerName   string `gorm:"size:63;index"`
	BlobName        string `gorm:"size:1024"`
	DeclaredLength  int64
	ContentType     string `gorm:"size:255"`
	ContentEncoding string `gorm:"size:64"`
	ContentLanguage string `gorm:"size:64"`
	MetadataJSON    string `gorm:"type:text"`
	TagsJSON        string `gorm:"type:text"`
	CreatedAt       string `gorm:"size:64"`
	LastActivityAt  string `gorm:"size:64;index"`

	Blocks []UploadBlock `gorm:"foreignKey:UploadID;references:ID;constraint:OnDelete:CASCADE"`
}

// Metadata returns the decoded metadata map.
func (u *Upload) Metadata() map[string]string {
	return DecodeDoc(u.MetadataJSON)
}

// Tags returns the decoded tags map.
func (u *Upload) Tags() map[string]string {
	return DecodeDoc(u.TagsJSON)
}

// UploadBlock records one staged block of an upload.
type UploadBlock struct {
	UploadID   string `gorm:"primaryKey;size:64"`
	BlockID    string `gorm:"primaryKey;size:128"`
	Size       int64
	ContentMD5 string `gorm:"size:64"`
	UploadedAt string `gorm:"size:64"`
}

// ContainerFromInfo builds a cache record from the remote store's view of a
// container. Aggregates are not part of the remote view and are preserved
// separately.
func ContainerFromInfo(ci remote.ContainerInfo) *Container {
	return &Container{
		Name:                   ci.Name,
		ETag:                   ci.ETag,
		LastModified:           FormatTime(ci.LastModified),
		DefaultEncryptionScope: ci.DefaultEncryptionScope,
		PublicAccess:           ci.PublicAccess,
		HasLegalHold:           ci.HasLegalHold,
		HasImmutabilityPolicy:  ci.HasImmutabilityPolicy,
		MetadataJSON:           EncodeDoc(ci.Metadata),
	}
}

// BlobFromInfo builds a cache record from the remote store's view of a blob.
func BlobFromInfo(bi remote.BlobInfo) *Blob {
	return &Blob{
		ContainerName:          bi.Container,
		Name:                   bi.Name,
		ETag:                   bi.ETag,
		BlobType:               bi.BlobType,
		ContentType:            bi.ContentType,
		ContentEncoding:        bi.ContentEncoding,
		ContentLanguage:        bi.ContentLanguage,
		ContentLength:          bi.ContentLength,
		CreatedAt:              FormatTime(bi.CreatedAt),
		LastModified:           FormatTime(bi.LastModified),
		ExpiresAt:              FormatTime(bi.ExpiresAt),
		LastAccessedAt:         FormatTime(bi.LastAccessedAt),
		LegalHold:              bi.LegalHold,
		RemainingRetentionDays: bi.RemainingRetentionDays,
		MetadataJSON:           EncodeDoc(bi.Metadata),
		TagsJSON:               EncodeDoc(bi.Tags),
	}
}

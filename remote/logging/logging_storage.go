// Package logging implements a wrapper around a remote store that logs all activity.
package logging

import (
	"context"
	"io"

	"github.com/blobmirror/blobmirror/internal/clock"
	"github.com/blobmirror/blobmirror/remote"
)

type loggingStore struct {
	base   remote.Store
	printf func(string, ...interface{})
	prefix string
}

func (s *loggingStore) CreateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	t0 := clock.Now()
	result, err := s.base.CreateContainer(ctx, name, opts)
	s.printf(s.prefix+"CreateContainer(%q)=%#v took %v", name, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) GetContainer(ctx context.Context, name string) (remote.ContainerInfo, error) {
	t0 := clock.Now()
	result, err := s.base.GetContainer(ctx, name)
	s.printf(s.prefix+"GetContainer(%q)=%#v took %v", name, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) ListContainers(ctx context.Context, callback func(remote.ContainerInfo) error) error {
	t0 := clock.Now()
	cnt := 0

	err := s.base.ListContainers(ctx, func(ci remote.ContainerInfo) error {
		cnt++

		return callback(ci)
	})
	s.printf(s.prefix+"ListContainers()=(%v items, %#v) took %v", cnt, err, clock.Since(t0))

	return err
}

func (s *loggingStore) UpdateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	t0 := clock.Now()
	result, err := s.base.UpdateContainer(ctx, name, opts)
	s.printf(s.prefix+"UpdateContainer(%q)=%#v took %v", name, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) DeleteContainer(ctx context.Context, name string) error {
	t0 := clock.Now()
	err := s.base.DeleteContainer(ctx, name)
	s.printf(s.prefix+"DeleteContainer(%q)=%#v took %v", name, err, clock.Since(t0))

	return err
}

func (s *loggingStore) GetBlob(ctx context.Context, container, name string) (remote.BlobInfo, error) {
	t0 := clock.Now()
	result, err := s.base.GetBlob(ctx, container, name)
	s.printf(s.prefix+"GetBlob(%q,%q)=%#v took %v", container, name, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) ListBlobs(ctx context.Context, container string, callback func(remote.BlobInfo) error) error {
	t0 := clock.Now()
	cnt := 0

	err := s.base.ListBlobs(ctx, container, func(bi remote.BlobInfo) error {
		cnt++

		return callback(bi)
	})
	s.printf(s.prefix+"ListBlobs(%q)=(%v items, %#v) took %v", container, cnt, err, clock.Since(t0))

	return err
}

func (s *loggingStore) UpdateBlob(ctx context.Context, container, name string, opts remote.BlobOptions) (remote.BlobInfo, error) {
	t0 := clock.Now()
	result, err := s.base.UpdateBlob(ctx, container, name, opts)
	s.printf(s.prefix+"UpdateBlob(%q,%q)=%#v took %v", container, name, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) DeleteBlob(ctx context.Context, container, name string) error {
	t0 := clock.Now()
	err := s.base.DeleteBlob(ctx, container, name)
	s.printf(s.prefix+"DeleteBlob(%q,%q)=%#v took %v", container, name, err, clock.Since(t0))

	return err
}

func (s *loggingStore) DownloadBlob(ctx context.Context, container, name string, rng *remote.Range) (*remote.Download, error) {
	t0 := clock.Now()
	result, err := s.base.DownloadBlob(ctx, container, name, rng)
	s.printf(s.prefix+"DownloadBlob(%q,%q,%v)=%#v took %v", container, name, rng, err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) StageBlock(ctx context.Context, container, name, blockID string, content io.Reader, length int64) error {
	t0 := clock.Now()
	err := s.base.StageBlock(ctx, container, name, blockID, content, length)
	s.printf(s.prefix+"StageBlock(%q,%q,%q,len=%v)=%#v took %v", container, name, blockID, length, err, clock.Since(t0))

	return err
}

func (s *loggingStore) CommitBlockList(ctx context.Context, container, name string, blockIDs []string, opts remote.CommitOptions) (remote.BlobInfo, error) {
	t0 := clock.Now()
	result, err := s.base.CommitBlockList(ctx, container, name, blockIDs, opts)
	s.printf(s.prefix+"CommitBlockList(%q,%q,%v blocks)=%#v took %v", container, name, len(blockIDs), err, clock.Since(t0))

	return result, err
}

func (s *loggingStore) DisplayName() string {
	return s.base.DisplayName()
}

// NewWrapper returns a remote store wrapper that logs all calls to the
// provided printf-style function.
func NewWrapper(wrapped remote.Store, printf func(string, ...interface{}), prefix string) remote.Store {
	return &loggingStore{base: wrapped, printf: printf, prefix: prefix}
}

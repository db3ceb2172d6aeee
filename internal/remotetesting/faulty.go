package remotetesting

import (
	"context"
	"io"
	"sync"

	"github.com/blobmirror/blobmirror/remote"
)

// Faulty wraps a remote store and injects scripted errors, one per call, per
// method name. When no fault is scripted for a method the call passes
// through.
type Faulty struct {
	Base remote.Store

	mutex  sync.Mutex
	faults map[string][]error
}

// NewFaulty returns a fault-injecting wrapper around the given store.
func NewFaulty(base remote.Store) *Faulty {
	return &Faulty{Base: base, faults: map[string][]error{}}
}

// AddFault schedules an error to be returned by the next call to the given
// method.
func (s *Faulty) AddFault(method string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.faults[method] = append(s.faults[method], err)
}

func (s *Faulty) nextFault(method string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	q := s.faults[method]
	if len(q) == 0 {
		return nil
	}

	err := q[0]
	s.faults[method] = q[1:]

	return err
}

func (s *Faulty) CreateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	if err := s.nextFault("CreateContainer"); err != nil {
		return remote.ContainerInfo{}, err
	}

	return s.Base.CreateContainer(ctx, name, opts)
}

func (s *Faulty) GetContainer(ctx context.Context, name string) (remote.ContainerInfo, error) {
	if err := s.nextFault("GetContainer"); err != nil {
		return remote.ContainerInfo{}, err
	}

	return s.Base.GetContainer(ctx, name)
}

func (s *Faulty) ListContainers(ctx context.Context, callback func(remote.ContainerInfo) error) error {
	if err := s.nextFault("ListContainers"); err != nil {
		return err
	}

	return s.Base.ListContainers(ctx, callback)
}

func (s *Faulty) UpdateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	if err := s.nextFault("UpdateContainer"); err != nil {
		return remote.ContainerInfo{}, err
	}

	return s.Base.UpdateContainer(ctx, name, opts)
}

func (s *Faulty) DeleteContainer(ctx context.Context, name string) error {
	if err := s.nextFault("DeleteContainer"); err != nil {
		return err
	}

	return s.Base.DeleteContainer(ctx, name)
}

func (s *Faulty) GetBlob(ctx context.Context, container, name string) (remote.BlobInfo, error) {
	if err := s.nextFault("GetBlob"); err != nil {
		return remote.BlobInfo{}, err
	}

	return s.Base.GetBlob(ctx, container, name)
}

func (s *Faulty) ListBlobs(ctx context.Context, container string, callback func(remote.BlobInfo) error) error {
	if err := s.nextFault("ListBlobs"); err != nil {
		return err
	}

	return s.Base.ListBlobs(ctx, container, callback)
}

func (s *Faulty) UpdateBlob(ctx context.Context, container, name string, opts remote.BlobOptions) (remote.BlobInfo, error) {
	if err := s.nextFault("UpdateBlob"); err != nil {
		return remote.BlobInfo{}, err
	}

	return s.Base.UpdateBlob(ctx, container, name, opts)
}

func (s *Faulty) DeleteBlob(ctx context.Context, container, name string) error {
	if err := s.nextFault("DeleteBlob"); err != nil {
		return err
	}

	return s.Base.DeleteBlob(ctx, container, name)
}

func (s *Faulty) DownloadBlob(ctx context.Context, container, name string, rng *remote.Range) (*remote.Download, error) {
	if err := s.nextFault("DownloadBlob"); err != nil {
		return nil, err
	}

	return s.Base.DownloadBlob(ctx, container, name, rng)
}

func (s *Faulty) StageBlock(ctx context.Context, container, name, blockID string, content io.Reader, length int64) error {
	if err := s.nextFault("StageBlock"); err != nil {
		return err
	}

	return s.Base.StageBlock(ctx, container, name, blockID, content, length)
}

func (s *Faulty) CommitBlockList(ctx context.Context, container, name string, blockIDs []string, opts remote.CommitOptions) (remote.BlobInfo, error) {
	if err := s.nextFault("CommitBlockList"); err != nil {
		return remote.BlobInfo{}, err
	}

	return s.Base.CommitBlockList(ctx, container, name, blockIDs, opts)
}

func (s *Faulty) DisplayName() string {
	return "Faulty: " + s.Base.DisplayName()
}

var _ remote.Store = (*Faulty)(nil)

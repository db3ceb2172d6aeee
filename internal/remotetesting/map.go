// Package remotetesting implements fake implementations of the remote store
// contract for use in tests.
package remotetesting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

type fakeBlob struct {
	info    remote.BlobInfo
	content []byte
}

type fakeContainer struct {
	info  remote.ContainerInfo
	blobs map[string]*fakeBlob
}

// MapStore is an in-memory remote store backed by maps, suitable for testing
// the write-through, reconciliation and upload engines without a network.
type MapStore struct {
	mutex      sync.RWMutex
	timeNow    func() time.Time
	containers map[string]*fakeContainer
	staged     map[string]map[string][]byte
	etagSeq    int
}

// NewMapStore returns an empty in-memory store that uses the given time
// source for last-modified timestamps.
func NewMapStore(timeNow func() time.Time) *MapStore {
	if timeNow == nil {
		timeNow = time.Now
	}

	return &MapStore{
		timeNow:    timeNow,
		containers: map[string]*fakeContainer{},
		staged:     map[string]map[string][]byte{},
	}
}

func (s *MapStore) nextETag() string {
	s.etagSeq++

	return fmt.Sprintf("\"fake-etag-%v\"", s.etagSeq)
}

func (s *MapStore) CreateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.containers[name]; ok {
		return remote.ContainerInfo{}, stoerr.AlreadyExists(name)
	}

	s.containers[name] = &fakeContainer{
		info: remote.ContainerInfo{
			Name:         name,
			ETag:         s.nextETag(),
			LastModified: s.timeNow(),
			PublicAccess: opts.PublicAccess,
			Metadata:     cloneMap(opts.Metadata),
		},
		blobs: map[string]*fakeBlob{},
	}

	return s.containers[name].info, nil
}

func (s *MapStore) GetContainer(ctx context.Context, name string) (remote.ContainerInfo, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.containers[name]
	if !ok {
		return remote.ContainerInfo{}, stoerr.NotFound(name)
	}

	return c.info, nil
}

func (s *MapStore) ListContainers(ctx context.Context, callback func(remote.ContainerInfo) error) error {
	s.mutex.RLock()

	infos := make([]remote.ContainerInfo, 0, len(s.containers))
	for _, c := range s.containers {
		infos = append(infos, c.info)
	}

	s.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	for _, ci := range infos {
		if err := callback(ci); err != nil {
			return err
		}
	}

	return nil
}

func (s *MapStore) UpdateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.containers[name]
	if !ok {
		return remote.ContainerInfo{}, stoerr.NotFound(name)
	}

	c.info.Metadata = cloneMap(opts.Metadata)
	c.info.ETag = s.nextETag()
	c.info.LastModified = s.timeNow()

	if opts.PublicAccess != "" {
		c.info.PublicAccess = opts.PublicAccess
	}

	return c.info, nil
}

func (s *MapStore) DeleteContainer(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.containers, name)

	for ref := range s.staged {
		if c, _ := splitRef(ref); c == name {
			delete(s.staged, ref)
		}
	}

	return nil
}

func (s *MapStore) GetBlob(ctx context.Context, container, name string) (remote.BlobInfo, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	b, err := s.getBlobLocked(container, name)
	if err != nil {
		return remote.BlobInfo{}, err
	}

	return b.info, nil
}

func (s *MapStore) getBlobLocked(container, name string) (*fakeBlob, error) {
	c, ok := s.containers[container]
	if !ok {
		return nil, stoerr.NotFound(container)
	}

	b, ok := c.blobs[name]
	if !ok {
		return nil, stoerr.NotFound(remote.BlobResource(container, name))
	}

	return b, nil
}

func (s *MapStore) ListBlobs(ctx context.Context, container string, callback func(remote.BlobInfo) error) error {
	s.mutex.RLock()

	c, ok := s.containers[container]
	if !ok {
		s.mutex.RUnlock()

		return stoerr.NotFound(container)
	}

	infos := make([]remote.BlobInfo, 0, len(c.blobs))
	for _, b := range c.blobs {
		infos = append(infos, b.info)
	}

	s.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	for _, bi := range infos {
		if err := callback(bi); err != nil {
			return err
		}
	}

	return nil
}

func (s *MapStore) UpdateBlob(ctx context.Context, container, name string, opts remote.BlobOptions) (remote.BlobInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := s.getBlobLocked(container, name)
	if err != nil {
		return remote.BlobInfo{}, err
	}

	if opts.ContentType != "" {
		b.info.ContentType = opts.ContentType
	}

	if opts.ContentEncoding != "" {
		b.info.ContentEncoding = opts.ContentEncoding
	}

	if opts.ContentLanguage != "" {
		b.info.ContentLanguage = opts.ContentLanguage
	}

	if opts.Metadata != nil {
		b.info.Metadata = cloneMap(opts.Metadata)
	}

	if opts.Tags != nil {
		b.info.Tags = cloneMap(opts.Tags)
	}

	b.info.ETag = s.nextETag()
	b.info.LastModified = s.timeNow()

	return b.info, nil
}

func (s *MapStore) DeleteBlob(ctx context.Context, container, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c, ok := s.containers[container]; ok {
		delete(c.blobs, name)
	}

	return nil
}

// DownloadBlob serves blob content from memory. A range that exceeds the
// blob's bounds fails with RangeNotSatisfiable and no stream is opened.
func (s *MapStore) DownloadBlob(ctx context.Context, container, name string, rng *remote.Range) (*remote.Download, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	b, err := s.getBlobLocked(container, name)
	if err != nil {
		return nil, err
	}

	content := b.content
	status := http.StatusOK
	contentRange := ""
	total := int64(len(content))

	if rng != nil {
		end := total
		if rng.Length > 0 {
			end = rng.Offset + rng.Length
		}

		if rng.Offset < 0 || rng.Offset >= total || end > total {
			return nil, stoerr.RangeNotSatisfiable(remote.BlobResource(container, name))
		}

		content = content[rng.Offset:end]
		status = http.StatusPartialContent
		contentRange = fmt.Sprintf("bytes %v-%v/%v", rng.Offset, end-1, total)
	}

	return &remote.Download{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: int64(len(content)),
		ContentRange:  contentRange,
		ContentType:   b.info.ContentType,
		Status:        status,
	}, nil
}

func (s *MapStore) StageBlock(ctx context.Context, container, name, blockID string, content io.Reader, length int64) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return stoerr.RemoteUnavailable(remote.BlobResource(container, name), 0, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.containers[container]; !ok {
		return stoerr.NotFound(container)
	}

	ref := remote.BlobResource(container, name)

	if s.staged[ref] == nil {
		s.staged[ref] = map[string][]byte{}
	}

	s.staged[ref][blockID] = data

	return nil
}

func (s *MapStore) CommitBlockList(ctx context.Context, container, name string, blockIDs []string, opts remote.CommitOptions) (remote.BlobInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.containers[container]
	if !ok {
		return remote.BlobInfo{}, stoerr.NotFound(container)
	}

	ref := remote.BlobResource(container, name)

	var content []byte

	for _, id := range blockIDs {
		data, ok := s.staged[ref][id]
		if !ok {
			return remote.BlobInfo{}, stoerr.InvalidArgument(ref, "block "+id+" not staged")
		}

		content = append(content, data...)
	}

	now := s.timeNow()

	b := &fakeBlob{
		info: remote.BlobInfo{
			Container:       container,
			Name:            name,
			ETag:            s.nextETag(),
			BlobType:        "BlockBlob",
			ContentType:     opts.ContentType,
			ContentEncoding: opts.ContentEncoding,
			ContentLanguage: opts.ContentLanguage,
			ContentLength:   int64(len(content)),
			CreatedAt:       now,
			LastModified:    now,
			Metadata:        cloneMap(opts.Metadata),
			Tags:            cloneMap(opts.Tags),
		},
		content: content,
	}

	c.blobs[name] = b

	// committing discards the uncommitted block list.
	delete(s.staged, ref)

	return b.info, nil
}

func (s *MapStore) DisplayName() string {
	return "Map"
}

// PutBlob is a test helper that places a blob with the given content
// directly into the store.
func (s *MapStore) PutBlob(container, name string, content []byte, contentType string) remote.BlobInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.containers[container]
	if !ok {
		c = &fakeContainer{
			info: remote.ContainerInfo{
				Name:         container,
				ETag:         s.nextETag(),
				LastModified: s.timeNow(),
			},
			blobs: map[string]*fakeBlob{},
		}
		s.containers[container] = c
	}

	now := s.timeNow()

	b := &fakeBlob{
		info: remote.BlobInfo{
			Container:     container,
			Name:          name,
			ETag:          s.nextETag(),
			BlobType:      "BlockBlob",
			ContentType:   contentType,
			ContentLength: int64(len(content)),
			CreatedAt:     now,
			LastModified:  now,
		},
		content: append([]byte(nil), content...),
	}

	c.blobs[name] = b

	return b.info
}

// StagedBlockCount reports the number of uncommitted blocks held for the
// given blob.
func (s *MapStore) StagedBlockCount(container, name string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.staged[remote.BlobResource(container, name)])
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}

	return result
}

func splitRef(ref string) (container, name string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:]
		}
	}

	return ref, ""
}

var _ remote.Store = (*MapStore)(nil)

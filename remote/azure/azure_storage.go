// Package azure implements the remote store contract on Azure Blob Storage.
package azure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/pkg/errors"

	"github.com/blobmirror/blobmirror/internal/spool"
	"github.com/blobmirror/blobmirror/remote"
	"github.com/blobmirror/blobmirror/stoerr"
)

const defaultStorageDomain = "blob.core.windows.net"

type azStorage struct {
	Options

	service *service.Client
}

func (az *azStorage) CreateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	cc := az.service.NewContainerClient(name)

	co := &container.CreateOptions{
		Metadata: toPtrMap(opts.Metadata),
	}

	if opts.PublicAccess != "" {
		co.Access = to.Ptr(container.PublicAccessType(opts.PublicAccess))
	}

	if _, err := cc.Create(ctx, co); err != nil {
		return remote.ContainerInfo{}, translateError(err, name)
	}

	return az.GetContainer(ctx, name)
}

func (az *azStorage) GetContainer(ctx context.Context, name string) (remote.ContainerInfo, error) {
	cc := az.service.NewContainerClient(name)

	resp, err := cc.GetProperties(ctx, nil)
	if err != nil {
		return remote.ContainerInfo{}, translateError(err, name)
	}

	ci := remote.ContainerInfo{
		Name:                   name,
		ETag:                   etagString(resp.ETag),
		LastModified:           timeValue(resp.LastModified),
		DefaultEncryptionScope: stringValue(resp.DefaultEncryptionScope),
		HasLegalHold:           boolValue(resp.HasLegalHold),
		HasImmutabilityPolicy:  boolValue(resp.HasImmutabilityPolicy),
		Metadata:               fromPtrMap(resp.Metadata),
	}

	if resp.BlobPublicAccess != nil {
		ci.PublicAccess = string(*resp.BlobPublicAccess)
	}

	return ci, nil
}

func (az *azStorage) ListContainers(ctx context.Context, callback func(remote.ContainerInfo) error) error {
	pager := az.service.NewListContainersPager(&service.ListContainersOptions{
		Include: service.ListContainersInclude{Metadata: true},
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return translateError(err, "")
		}

		for _, item := range resp.ContainerItems {
			if item == nil || item.Name == nil {
				continue
			}

			ci := remote.ContainerInfo{
				Name:     *item.Name,
				Metadata: fromPtrMap(item.Metadata),
			}

			if p := item.Properties; p != nil {
				ci.ETag = etagString(p.ETag)
				ci.LastModified = timeValue(p.LastModified)
				ci.DefaultEncryptionScope = stringValue(p.DefaultEncryptionScope)
				ci.HasLegalHold = boolValue(p.HasLegalHold)
				ci.HasImmutabilityPolicy = boolValue(p.HasImmutabilityPolicy)

				if p.PublicAccess != nil {
					ci.PublicAccess = string(*p.PublicAccess)
				}
			}

			if err := callback(ci); err != nil {
				return err
			}
		}
	}

	return nil
}

func (az *azStorage) UpdateContainer(ctx context.Context, name string, opts remote.ContainerOptions) (remote.ContainerInfo, error) {
	cc := az.service.NewContainerClient(name)

	if _, err := cc.SetMetadata(ctx, &container.SetMetadataOptions{
		Metadata: toPtrMap(opts.Metadata),
	}); err != nil {
		return remote.ContainerInfo{}, translateError(err, name)
	}

	return az.GetContainer(ctx, name)
}

// DeleteContainer deletes the container. Deleting a container that does not
// exist is not an error.
func (az *azStorage) DeleteContainer(ctx context.Context, name string) error {
	cc := az.service.NewContainerClient(name)

	_, err := cc.Delete(ctx, nil)
	err = translateError(err, name)

	if stoerr.Is(err, stoerr.KindNotFound) {
		return nil
	}

	return err
}

func (az *azStorage) GetBlob(ctx context.Context, containerName, name string) (remote.BlobInfo, error) {
	bc := az.blockBlobClient(containerName, name)
	res := remote.BlobResource(containerName, name)

	resp, err := bc.GetProperties(ctx, nil)
	if err != nil {
		return remote.BlobInfo{}, translateError(err, res)
	}

	bi := remote.BlobInfo{
		Container:       containerName,
		Name:            name,
		ETag:            etagString(resp.ETag),
		ContentType:     stringValue(resp.ContentType),
		ContentEncoding: stringValue(resp.ContentEncoding),
		ContentLanguage: stringValue(resp.ContentLanguage),
		ContentLength:   int64Value(resp.ContentLength),
		CreatedAt:       timeValue(resp.CreationTime),
		LastModified:    timeValue(resp.LastModified),
		ExpiresAt:       timeValue(resp.ExpiresOn),
		LegalHold:       boolValue(resp.LegalHold),
		Metadata:        fromPtrMap(resp.Metadata),
	}

	if resp.BlobType != nil {
		bi.BlobType = string(*resp.BlobType)
	}

	// tags are not part of the properties response and require a separate
	// round-trip, but only when the blob has any.
	if resp.TagCount != nil && *resp.TagCount > 0 {
		tresp, terr := bc.BlobClient().GetTags(ctx, nil)
		if terr != nil {
			return remote.BlobInfo{}, translateError(terr, res)
		}

		bi.Tags = fromTagSet(tresp.BlobTagSet)
	}

	return bi, nil
}

// ListBlobs enumerates all blobs of a container, invoking the callback for
// each. Fails with NotFound when the container does not exist.
func (az *azStorage) ListBlobs(ctx context.Context, containerName string, callback func(remote.BlobInfo) error) error {
	cc := az.service.NewContainerClient(containerName)

	pager := cc.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Include: container.ListBlobsInclude{Metadata: true, Tags: true},
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return translateError(err, containerName)
		}

		if resp.Segment == nil {
			continue
		}

		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}

			bi := remote.BlobInfo{
				Container: containerName,
				Name:      *item.Name,
				Metadata:  fromPtrMap(item.Metadata),
			}

			if item.BlobTags != nil {
				bi.Tags = fromTagSet(item.BlobTags.BlobTagSet)
			}

			if p := item.Properties; p != nil {
				bi.ETag = etagString(p.ETag)
				bi.ContentType = stringValue(p.ContentType)
				bi.ContentEncoding = stringValue(p.ContentEncoding)
				bi.ContentLanguage = stringValue(p.ContentLanguage)
				bi.ContentLength = int64Value(p.ContentLength)
				bi.CreatedAt = timeValue(p.CreationTime)
				bi.LastModified = timeValue(p.LastModified)
				bi.ExpiresAt = timeValue(p.ExpiresOn)
				bi.LastAccessedAt = timeValue(p.LastAccessedOn)
				bi.LegalHold = boolValue(p.LegalHold)

				if p.RemainingRetentionDays != nil {
					bi.RemainingRetentionDays = *p.RemainingRetentionDays
				}

				if p.BlobType != nil {
					bi.BlobType = string(*p.BlobType)
				}
			}

			if err := callback(bi); err != nil {
				return err
			}
		}
	}

	return nil
}

func (az *azStorage) UpdateBlob(ctx context.Context, containerName, name string, opts remote.BlobOptions) (remote.BlobInfo, error) {
	bc := az.blockBlobClient(containerName, name)
	res := remote.BlobResource(containerName, name)

	if opts.ContentType != "" || opts.ContentEncoding != "" || opts.ContentLanguage != "" {
		hdr := azblobblob.HTTPHeaders{}

		if opts.ContentType != "" {
			hdr.BlobContentType = to.Ptr(opts.ContentType)
		}

		if opts.ContentEncoding != "" {
			hdr.BlobContentEncoding = to.Ptr(opts.ContentEncoding)
		}

		if opts.ContentLanguage != "" {
			hdr.BlobContentLanguage = to.Ptr(opts.ContentLanguage)
		}

		if _, err := bc.BlobClient().SetHTTPHeaders(ctx, hdr, nil); err != nil {
			return remote.BlobInfo{}, translateError(err, res)
		}
	}

	if _, err := bc.BlobClient().SetMetadata(ctx, toPtrMap(opts.Metadata), nil); err != nil {
		return remote.BlobInfo{}, translateError(err, res)
	}

	if opts.Tags != nil {
		if _, err := bc.BlobClient().SetTags(ctx, opts.Tags, nil); err != nil {
			return remote.BlobInfo{}, translateError(err, res)
		}
	}

	return az.GetBlob(ctx, containerName, name)
}

// DeleteBlob deletes the blob. Deleting a blob that does not exist is not an
// error.
func (az *azStorage) DeleteBlob(ctx context.Context, containerName, name string) error {
	_, err := az.blockBlobClient(containerName, name).Delete(ctx, nil)
	err = translateError(err, remote.BlobResource(containerName, name))

	if stoerr.Is(err, stoerr.KindNotFound) {
		return nil
	}

	return err
}

func (az *azStorage) DownloadBlob(ctx context.Context, containerName, name string, rng *remote.Range) (*remote.Download, error) {
	bc := az.blockBlobClient(containerName, name)
	res := remote.BlobResource(containerName, name)

	opt := &azblobblob.DownloadStreamOptions{}
	status := http.StatusOK

	if rng != nil {
		opt.Range = azblobblob.HTTPRange{Offset: rng.Offset, Count: rng.Length}
		status = http.StatusPartialContent
	}

	resp, err := bc.DownloadStream(ctx, opt)
	if err != nil {
		return nil, translateError(err, res)
	}

	return &remote.Download{
		Body:          resp.Body,
		ContentLength: int64Value(resp.ContentLength),
		ContentRange:  stringValue(resp.ContentRange),
		ContentType:   stringValue(resp.ContentType),
		Status:        status,
	}, nil
}

// StageBlock uploads one block of a blob. The SDK requires a seekable body
// for transparent retry, so non-seekable content is spooled to an unlinked
// temp file rather than buffered in memory.
func (az *azStorage) StageBlock(ctx context.Context, containerName, name, blockID string, content io.Reader, length int64) error {
	bc := az.blockBlobClient(containerName, name)
	res := remote.BlobResource(containerName, name)

	var body io.ReadSeekCloser

	if rs, ok := content.(io.ReadSeeker); ok {
		body = streaming.NopCloser(rs)
	} else {
		f, err := spool.ToTempFile(content)
		if err != nil {
			return errors.Wrap(err, "error spooling block content")
		}

		defer f.Close() //nolint:errcheck

		body = f
	}

	if _, err := bc.StageBlock(ctx, blockID, body, nil); err != nil {
		return translateError(err, res)
	}

	return nil
}

func (az *azStorage) CommitBlockList(ctx context.Context, containerName, name string, blockIDs []string, opts remote.CommitOptions) (remote.BlobInfo, error) {
	bc := az.blockBlobClient(containerName, name)
	res := remote.BlobResource(containerName, name)

	if blockIDs == nil {
		blockIDs = []string{}
	}

	co := &blockblob.CommitBlockListOptions{
		HTTPHeaders: &azblobblob.HTTPHeaders{
			BlobContentType:     to.Ptr(opts.ContentType),
			BlobContentEncoding: to.Ptr(opts.ContentEncoding),
			BlobContentLanguage: to.Ptr(opts.ContentLanguage),
		},
		Metadata: toPtrMap(opts.Metadata),
	}

	if len(opts.Tags) > 0 {
		co.Tags = opts.Tags
	}

	if _, err := bc.CommitBlockList(ctx, blockIDs, co); err != nil {
		return remote.BlobInfo{}, translateError(err, res)
	}

	// the commit response carries only etag/last-modified; re-read the full
	// property set so callers get the store's current truth.
	return az.GetBlob(ctx, containerName, name)
}

func (az *azStorage) DisplayName() string {
	return fmt.Sprintf("Azure: %v", az.StorageAccount)
}

func (az *azStorage) blockBlobClient(containerName, name string) *blockblob.Client {
	return az.service.NewContainerClient(containerName).NewBlockBlobClient(name)
}

// translateError maps SDK failures onto the error taxonomy. This is the only
// place remote status codes are interpreted.
func translateError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var re *azcore.ResponseError

	if errors.As(err, &re) {
		switch {
		case bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.BlobNotFound):
			return stoerr.NotFound(resource)

		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists, bloberror.BlobAlreadyExists):
			return stoerr.AlreadyExists(resource)

		case re.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			return stoerr.RangeNotSatisfiable(resource)

		case re.StatusCode == http.StatusNotFound:
			return stoerr.NotFound(resource)

		case re.StatusCode == http.StatusConflict:
			return stoerr.AlreadyExists(resource)
		}

		return stoerr.RemoteUnavailable(resource, re.StatusCode, err)
	}

	return stoerr.RemoteUnavailable(resource, 0, err)
}

func toPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}

	result := make(map[string]*string, len(m))
	for k, v := range m {
		result[k] = to.Ptr(v)
	}

	return result
}

func fromPtrMap(m map[string]*string) map[string]string {
	if m == nil {
		return nil
	}

	result := make(map[string]string, len(m))

	for k, v := range m {
		if v != nil {
			result[k] = *v
		}
	}

	return result
}

func fromTagSet(tags []*azblobblob.Tags) map[string]string {
	if len(tags) == 0 {
		return nil
	}

	result := make(map[string]string, len(tags))

	for _, t := range tags {
		if t != nil && t.Key != nil && t.Value != nil {
			result[*t.Key] = *t.Value
		}
	}

	return result
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func int64Value(v *int64) int64 {
	if v == nil {
		return 0
	}

	return *v
}

func boolValue(v *bool) bool {
	return v != nil && *v
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}

func etagString(e *azcore.ETag) string {
	if e == nil {
		return ""
	}

	return string(*e)
}

// New creates a remote store backed by Azure Blob Storage.
//
// The 'StorageAccount' field plus either 'StorageKey' or 'SASToken' are
// required; all other options are optional.
func New(ctx context.Context, opt *Options) (remote.Store, error) {
	if opt.StorageAccount == "" {
		return nil, errors.New("storage account must be specified")
	}

	storageDomain := opt.StorageDomain
	if storageDomain == "" {
		storageDomain = defaultStorageDomain
	}

	storageHostname := fmt.Sprintf("%v.%v", opt.StorageAccount, storageDomain)

	var (
		svc        *service.Client
		serviceErr error
	)

	switch {
	case opt.SASToken != "":
		svc, serviceErr = service.NewClientWithNoCredential(
			fmt.Sprintf("https://%s/?%s", storageHostname, opt.SASToken), nil)

	case opt.StorageKey != "":
		cred, err := service.NewSharedKeyCredential(opt.StorageAccount, opt.StorageKey)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize credentials")
		}

		svc, serviceErr = service.NewClientWithSharedKeyCredential(
			fmt.Sprintf("https://%s/", storageHostname), cred, nil)

	default:
		return nil, errors.New("either storage key or SAS token must be provided")
	}

	if serviceErr != nil {
		return nil, errors.Wrap(serviceErr, "opening azure service")
	}

	az := &azStorage{
		Options: *opt,
		service: svc,
	}

	// verify the connection is functional by fetching the first page of the
	// container listing.
	pager := svc.NewListContainersPager(&service.ListContainersOptions{
		MaxResults: to.Ptr(int32(1)),
	})

	if _, err := pager.NextPage(ctx); err != nil {
		return nil, errors.Wrap(translateError(err, ""), "unable to list containers")
	}

	return az, nil
}

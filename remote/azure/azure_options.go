package azure

// Options defines options for the Azure-compatible remote store.
type Options struct {
	// StorageAccount is the name of the storage account.
	StorageAccount string `json:"storageAccount"`

	// StorageKey is the shared key of the storage account. Either StorageKey
	// or SASToken must be provided.
	StorageKey string `json:"storageKey,omitempty"`

	// SASToken is a shared-access-signature token used instead of StorageKey.
	SASToken string `json:"sasToken,omitempty"`

	// StorageDomain overrides the default endpoint suffix
	// (blob.core.windows.net), e.g. for sovereign clouds or emulators.
	StorageDomain string `json:"storageDomain,omitempty"`
}

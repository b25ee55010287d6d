package storage

import "cutline/internal/ports"

// Provider is the caption sidecar store the API writes to.
type Provider = ports.StorageProvider

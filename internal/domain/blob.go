package domain

import (
	"context"
	"time"
)

// BlobWriter writes archive objects to durable object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver exports terminal rows to object storage. Archival never deletes
// from the primary store; retention is an operator concern.
type Archiver interface {
	ArchiveFills(ctx context.Context, before time.Time) (int, error)
	ArchiveOrders(ctx context.Context, before time.Time) (int, error)
}

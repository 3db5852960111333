package service

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/pinboard/event-delivery-service/internal/adapter/blob"
)

// Cleaner removes blobs orphaned by deleted content.
// Every outcome is logged and swallowed; the pipeline never depends on it.
type Cleaner struct {
	client blob.Client
	logger *slog.Logger
}

// NewCleaner accepts a nil client, which disables cleanup.
func NewCleaner(client blob.Client, logger *slog.Logger) *Cleaner {
	return &Cleaner{client: client, logger: logger}
}

func (c *Cleaner) Clean(ctx context.Context, ref string) {
	if c == nil || c.client == nil || ref == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("PANIC_RECOVERED", "err", r, "stack", string(debug.Stack()), "ref", ref)
		}
	}()

	res := c.client.Delete(ctx, ref)
	switch res.Status {
	case blob.Found:
		c.logger.Info("BLOB_DELETED", "ref", ref)
	case blob.NotFound:
		c.logger.Debug("BLOB_ALREADY_GONE", "ref", ref)
	default:
		c.logger.Warn("BLOB_CLEANUP_FAILED", "ref", ref, "err", res.Err)
	}
}

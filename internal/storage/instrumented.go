package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/internal/metrics"
	"github.com/sly67/treedesk/pkg/models"
)

// Instrument wraps b so every call is timed and counted.
func Instrument(b Backend) Backend {
	if _, ok := b.(*instrumented); ok {
		return b
	}
	return &instrumented{next: b}
}

// Unwrap returns the backend under any instrumentation.
func Unwrap(b Backend) Backend {
	if i, ok := b.(*instrumented); ok {
		return i.next
	}
	return b
}

type instrumented struct {
	next Backend
}

func observe(ctx context.Context, op, target string, start time.Time, err error) {
	metrics.RecordFSOperation(op, time.Since(start), err)
	if err != nil {
		logging.WithContext(ctx).Debug("storage operation failed",
			zap.String("op", op),
			zap.String("target", target),
			zap.Error(err))
	}
}

func (i *instrumented) List(ctx context.Context, dir string) (entries []models.Entry, err error) {
	defer func(start time.Time) { observe(ctx, "list", dir, start, err) }(time.Now())
	return i.next.List(ctx, dir)
}

func (i *instrumented) Create(ctx context.Context, parent, name string, kind models.Kind) (err error) {
	defer func(start time.Time) { observe(ctx, "create", parent+"/"+name, start, err) }(time.Now())
	return i.next.Create(ctx, parent, name, kind)
}

func (i *instrumented) Rename(ctx context.Context, parent, oldName, newName string) (err error) {
	defer func(start time.Time) { observe(ctx, "rename", parent+"/"+oldName, start, err) }(time.Now())
	return i.next.Rename(ctx, parent, oldName, newName)
}

func (i *instrumented) Delete(ctx context.Context, parent, name string) (err error) {
	defer func(start time.Time) { observe(ctx, "delete", parent+"/"+name, start, err) }(time.Now())
	return i.next.Delete(ctx, parent, name)
}

func (i *instrumented) Read(ctx context.Context, dir, name string) (data []byte, err error) {
	defer func(start time.Time) { observe(ctx, "read", dir+"/"+name, start, err) }(time.Now())
	return i.next.Read(ctx, dir, name)
}

func (i *instrumented) Write(ctx context.Context, dir, name string, data []byte) (err error) {
	defer func(start time.Time) { observe(ctx, "write", dir+"/"+name, start, err) }(time.Now())
	return i.next.Write(ctx, dir, name, data)
}

func (i *instrumented) Type() string { return i.next.Type() }

func (i *instrumented) Close() error { return i.next.Close() }

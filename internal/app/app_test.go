package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/config"
	"mdstore/internal/domain"
	"mdstore/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_MemorySnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Backend: config.BackendMemory, Path: filepath.Join(t.TempDir(), "catalog.yaml"), TableBits: 10}

	first, err := OpenStore(ctx, cfg, discardLogger(), metrics.New())
	require.NoError(t, err)
	assert.False(t, first.Durable())
	schema, err := first.AddSchema(ctx, "sales", "", domain.Location{})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	cfg.TableBits = 0
	second, err := OpenStore(ctx, cfg, discardLogger(), metrics.New())
	require.NoError(t, err)
	assert.Equal(t, 10, second.Codec().TableBits())
	got, err := second.SchemaByName(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, schema.ID(), got.ID())
}

func TestOpenStore_SQLiteResumes(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Backend: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "mds.sqlite")}

	first, err := OpenStore(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	assert.True(t, first.Durable())
	_, err = first.AddSchema(ctx, "sales", "", domain.Location{})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := OpenStore(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(ctx) })
	schemas, err := second.Schemas(ctx)
	require.NoError(t, err)
	assert.Len(t, schemas, 1)
}

func TestOpenStore_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := &config.Config{Backend: config.BackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "app:"}

	store, err := OpenStore(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })
	assert.True(t, store.Durable())
	assert.True(t, mr.Exists("app:initialized"))
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenStore(ctx, &config.Config{Backend: "mysql"}, discardLogger(), nil)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = OpenStore(ctx, &config.Config{Backend: config.BackendMemory, Path: "ftp://host/x"}, discardLogger(), nil)
	require.ErrorAs(t, err, &ve)

	_, err = OpenStore(ctx, &config.Config{Backend: config.BackendSQLite}, discardLogger(), nil)
	require.Error(t, err)
}

func TestS3Options(t *testing.T) {
	id, secret, endpoint, region := "k", "s", "minio:9000", "eu-west-1"
	o := S3Options(&config.Config{S3KeyID: &id, S3Secret: &secret, S3Endpoint: &endpoint, S3Region: &region})
	assert.Equal(t, "k", o.KeyID)
	assert.Equal(t, "s", o.Secret)
	assert.Equal(t, "minio:9000", o.Endpoint)
	assert.Equal(t, "eu-west-1", o.Region)

	assert.Zero(t, S3Options(&config.Config{}))
}

type countingFlusher struct {
	calls int
	err   error
}

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

func TestFlushScheduler(t *testing.T) {
	_, err := NewFlushScheduler(&countingFlusher{}, "not a schedule", discardLogger())
	require.Error(t, err)

	f := &countingFlusher{}
	s, err := NewFlushScheduler(f, "@every 1h", discardLogger())
	require.NoError(t, err)
	s.Start()
	s.flush()
	f.err = errors.New("disk full")
	s.flush()
	s.Stop()
	assert.Equal(t, 2, f.calls)
}

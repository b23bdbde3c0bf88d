package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	args := m.Called(ctx, key, contentType, body, size)
	return args.Error(0)
}

func (m *BlobStoreMock) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)

	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *BlobStoreMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// PresigningBlobStoreMock also hands out signed URLs.
type PresigningBlobStoreMock struct {
	BlobStoreMock
}

func (m *PresigningBlobStoreMock) PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, filename, ttl)
	return args.String(0), args.Error(1)
}

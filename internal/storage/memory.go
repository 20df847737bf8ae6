package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Memory implements Gateway in-process for unit tests. Presigned URLs are
// unique per call, mirroring how real signatures differ between requests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	signSeq int

	// FailKeys makes Put fail for keys containing any of these substrings.
	FailKeys []string

	// FetchErr is returned by Fetch when non-nil.
	FetchErr error
}

type memObject struct {
	data         []byte
	contentType  string
	cacheControl string
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	for _, frag := range m.FailKeys {
		if strings.Contains(key, frag) {
			return fmt.Errorf("injected write failure for %q", key)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{
		data:         append([]byte(nil), data...),
		contentType:  opts.ContentType,
		cacheControl: opts.CacheControl,
	}
	return nil
}

func (m *Memory) Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("copy source %q not found", srcKey)
	}
	m.objects[dstKey] = memObject{
		data:         append([]byte(nil), src.data...),
		contentType:  opts.ContentType,
		cacheControl: opts.CacheControl,
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

func (m *Memory) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %q not found", key)
	}
	m.signSeq++
	return fmt.Sprintf("https://storage.test/%s?sig=%d&expires=%d", key, m.signSeq, int64(expiry.Seconds())), nil
}

// Has reports whether an object exists. Test helper.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Object returns a stored object's bytes. Test helper.
func (m *Memory) Object(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.objects[key].data...)
}

// CacheControl returns the stored cache directive for a key. Test helper.
func (m *Memory) CacheControl(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].cacheControl
}

var _ Gateway = (*Memory)(nil)

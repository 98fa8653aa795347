package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.Mutex
	objects map[string]mockObject
	now     func() time.Time

	// Err fields, when set, are returned by the corresponding method.
	ListErr   error
	GetErr    error
	PutErr    error
	CopyErr   error
	DeleteErr error

	Closed bool
}

type mockObject struct {
	data         []byte
	lastModified time.Time
}

// NewMockStore creates an empty MockStore whose objects get increasing
// modification times starting at 2024-01-01 UTC.
func NewMockStore() *MockStore {
	next := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &MockStore{
		objects: make(map[string]mockObject),
		now: func() time.Time {
			t := next
			next = next.Add(time.Minute)
			return t
		},
	}
}

// PutAt stores an object with an explicit modification time.
func (m *MockStore) PutAt(url string, body []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = mockObject{data: slices.Clone(body), lastModified: modified.UTC()}
}

// URLs returns every stored URL, sorted.
func (m *MockStore) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, 0, len(m.objects))
	for u := range m.objects {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Has reports whether url exists.
func (m *MockStore) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

func (m *MockStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if _, _, err := ParseURL(prefix); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Object
	for u, obj := range m.objects {
		if !strings.HasPrefix(u, prefix) || strings.HasSuffix(u, "/") {
			continue
		}
		out = append(out, Object{URL: u, Size: int64(len(obj.data)), LastModified: obj.lastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *MockStore) Get(ctx context.Context, url string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	return slices.Clone(obj.data), nil
}

func (m *MockStore) Put(ctx context.Context, url string, body []byte) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	if _, _, err := ParseURL(url); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = mockObject{data: slices.Clone(body), lastModified: m.now()}
	return nil
}

func (m *MockStore) Copy(ctx context.Context, srcURL, dstURL string) error {
	if m.CopyErr != nil {
		return m.CopyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[srcURL]
	if !ok {
		return fmt.Errorf("%s: %w", srcURL, ErrNotFound)
	}
	m.objects[dstURL] = mockObject{data: slices.Clone(obj.data), lastModified: m.now()}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, url string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	return nil
}

// Close marks the store as closed.
func (m *MockStore) Close() error {
	m.Closed = true
	return nil
}

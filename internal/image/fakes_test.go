package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// fakeStore is an in-memory Store shared by the package tests. The fail and
// hook fields simulate dependency faults and lookup races.
type fakeStore struct {
	mu           sync.Mutex
	images       map[string]Image // by ID
	nextID       int
	createErr    error
	failDeleteID string
	missLookups  int    // FindByHash misses this many times before finding
	onFindOlder  func() // called at the start of FindOlderThan
}

func newFakeStore() *fakeStore {
	return &fakeStore{images: map[string]Image{}}
}

func (f *fakeStore) FindByHash(_ context.Context, hash string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missLookups > 0 {
		f.missLookups--
		return nil, ErrNotFound
	}
	for _, img := range f.images {
		if img.ContentHash == hash {
			cp := img
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FindOlderThan(_ context.Context, cutoff time.Time) ([]Image, error) {
	if f.onFindOlder != nil {
		f.onFindOlder()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Image
	for _, img := range f.images {
		if img.CreatedAt.Before(cutoff) {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, img *Image) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.images {
		if existing.ContentHash == img.ContentHash {
			return nil, ErrHashExists
		}
	}
	f.nextID++
	created := *img
	created.ID = fmt.Sprintf("img-%d", f.nextID)
	created.CreatedAt = time.Now()
	f.images[created.ID] = created
	return &created, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteID == id {
		return errors.New("metadata delete failed")
	}
	delete(f.images, id)
	return nil
}

func (f *fakeStore) add(img Image) {
	f.mu.Lock()
	f.images[img.ID] = img
	f.mu.Unlock()
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images)
}

func (f *fakeStore) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.images[id]
	return ok
}

// fakeStorage is an in-memory blob store.
type fakeStorage struct {
	mu            sync.Mutex
	objects       map[string][]byte
	uploadErr     error
	failDeleteKey string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failDeleteKey {
		return errors.New("blob delete failed")
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) PublicURL(key string) string {
	return "http://blobs.test/" + key
}

func (f *fakeStorage) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeStorage) hasObject(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStorage) putObject(key string, data []byte) {
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
}

package service

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"paggo-backend/events"
	"paggo-backend/models"
	"paggo-backend/repository"
	"paggo-backend/storage"
	"paggo-backend/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memFileStore is an in-memory FileStore with injectable failures
type memFileStore struct {
	mu        sync.Mutex
	files     map[uuid.UUID]*models.File
	clock     time.Time
	createErr error
	updateErr error
	deleteErr error
}

func newMemFileStore() *memFileStore {
	return &memFileStore{
		files: make(map[uuid.UUID]*models.File),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memFileStore) Create(ctx context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.files[file.ID]; ok {
		return errors.New("duplicate key")
	}
	m.clock = m.clock.Add(time.Millisecond)
	file.CreatedAt = m.clock
	stored := *file
	m.files[file.ID] = &stored
	return nil
}

func (m *memFileStore) GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, repository.ErrFileNotFound
	}
	out := *f
	return &out, nil
}

func (m *memFileStore) ListByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := make([]*models.File, 0)
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			out := *f
			files = append(files, &out)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (m *memFileStore) UpdateExtractedText(ctx context.Context, id uuid.UUID, text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return false, m.updateErr
	}
	f, ok := m.files[id]
	if !ok {
		return false, nil
	}
	f.ExtractedText = &text
	return true, nil
}

func (m *memFileStore) Delete(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	f, ok := m.files[id]
	if !ok || f.OwnerID != ownerID {
		return false, nil
	}
	delete(m.files, id)
	return true, nil
}

func (m *memFileStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// flakyStorage wraps LocalStorage and can fail individual operations
type flakyStorage struct {
	*storage.LocalStorage
	root string

	mu        sync.Mutex
	puts      int
	putErr    error
	getErr    error
	deleteErr error
}

func newFlakyStorage(t *testing.T) *flakyStorage {
	t.Helper()
	root := t.TempDir()
	local, err := storage.NewLocalStorage(root, "http://files.test")
	require.NoError(t, err)
	return &flakyStorage{LocalStorage: local, root: root}
}

func (s *flakyStorage) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	s.puts++
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.LocalStorage.Put(ctx, key, data, size, contentType)
}

func (s *flakyStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.LocalStorage.Get(ctx, key)
}

func (s *flakyStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.LocalStorage.Delete(ctx, key)
}

// objectCount counts stored objects on disk
func (s *flakyStorage) objectCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (s *flakyStorage) exists(key string) bool {
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(key)))
	return err == nil
}

// fakeExtractor returns canned results and records calls
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, data []byte, mimeType string) (string, error)
}

func (e *fakeExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	e.mu.Lock()
	e.calls++
	fn := e.fn
	e.mu.Unlock()
	return fn(ctx, data, mimeType)
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func returnText(text string) func(context.Context, []byte, string) (string, error) {
	return func(context.Context, []byte, string) (string, error) {
		return text, nil
	}
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EnrichmentEvent
}

func (p *recordingPublisher) PublishEnrichment(ctx context.Context, event events.EnrichmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []events.EnrichmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.EnrichmentEvent(nil), p.events...)
}

type testEnv struct {
	service   *FileService
	files     *memFileStore
	storage   *flakyStorage
	extractor *fakeExtractor
	pool      *worker.Pool
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, opts ...FileServiceOption) *testEnv {
	t.Helper()

	pool, err := worker.NewPool(worker.WithSize(4))
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Wait()
		_ = pool.Shutdown(context.Background())
	})

	env := &testEnv{
		files:     newMemFileStore(),
		storage:   newFlakyStorage(t),
		extractor: &fakeExtractor{fn: returnText("Hello\nWorld")},
		pool:      pool,
		publisher: &recordingPublisher{},
	}

	base := []FileServiceOption{
		FileWithRepository(env.files),
		FileWithStorage(env.storage),
		FileWithExtractor(env.extractor),
		FileWithDispatcher(pool),
		FileWithPublisher(env.publisher),
		FileWithMaxUploadBytes(5 * 1024 * 1024),
		FileWithExtractionTimeout(2 * time.Second),
	}
	env.service = NewFileService(append(base, opts...)...)
	return env
}

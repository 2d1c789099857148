package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// stubStrategy counts invocations and delegates each attempt to fn.
type stubStrategy struct {
	name  string
	calls int
	fn    func(op *Operation) error
}

func (s *stubStrategy) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubStrategy) Execute(ctx context.Context, op *Operation) error {
	s.calls++
	if s.fn == nil {
		return nil
	}
	return s.fn(op)
}

// memStorage is an in-memory StorageProvider for tests.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memStorage) Upload(ctx context.Context, key string, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return NewStorageError("failed to read local file", err)
	}
	m.put(key, data)
	return nil
}

func (m *memStorage) Download(ctx context.Context, key string, localPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.downloads++
	m.mu.Unlock()
	if !ok {
		return NewStorageError("object not found: "+key, nil)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
		return NewStorageError("failed to create destination directory", err)
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (m *memStorage) List(ctx context.Context, prefix string) ([]ArtifactInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var artifacts []ArtifactInfo
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, ".meta.json") {
			continue
		}
		created := time.Now()
		if ts, _, _, err := ParseArtifactName(filepath.Base(key)); err == nil {
			created = ts
		}
		artifacts = append(artifacts, ArtifactInfo{Key: key, SizeBytes: int64(len(data)), CreatedAt: created})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	return artifacts, nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.objects, key+".meta.json")
	return nil
}

func (m *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// fakeAdapter is an in-memory DatabaseAdapter whose dumps and restores are
// plain byte slices.
type fakeAdapter struct {
	typ        string
	dump       []byte
	dumpErr    error
	restoreErr error
	grants     []byte
	grantsErr  error

	restored    []byte
	restoreFrom string
}

func (f *fakeAdapter) Type() string {
	if f.typ == "" {
		return "mysql"
	}
	return f.typ
}

func (f *fakeAdapter) Extension() string { return ".sql" }

func (f *fakeAdapter) Dump(ctx context.Context, db *DatabaseDescriptor, destPath string) error {
	if f.dumpErr != nil {
		return f.dumpErr
	}
	return os.WriteFile(destPath, f.dump, 0o600)
}

func (f *fakeAdapter) Restore(ctx context.Context, db *DatabaseDescriptor, srcPath string) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	f.restored = data
	f.restoreFrom = srcPath
	return nil
}

func (f *fakeAdapter) ListDatabases(ctx context.Context, db *DatabaseDescriptor) ([]string, error) {
	return []string{db.Database}, nil
}

func (f *fakeAdapter) CaptureGrants(ctx context.Context, db *DatabaseDescriptor) ([]byte, error) {
	return f.grants, f.grantsErr
}

func testOperation(kind OperationKind) *Operation {
	return NewOperation(kind,
		&DatabaseDescriptor{Type: "mysql", Host: "localhost", Port: 3306, Database: "appdb"},
		&StorageConfig{Provider: StorageProviderLocal, Local: &LocalConfig{BasePath: os.TempDir()}},
		&BackupPolicy{WorkDir: os.TempDir(), Compression: CompressionTypeNone})
}

func testExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{MaxRetries: 3, RetryDelay: time.Millisecond}
}

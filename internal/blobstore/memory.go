package blobstore

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// MemoryStore 内存附件存储,用于开发和测试
type MemoryStore struct {
	baseURL string
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemoryStore 创建内存附件存储
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://"
	}
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// Upload 写入对象,同一路径覆盖
func (s *MemoryStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[objectPath] = memoryObject{data: buf, contentType: contentType, uploadedAt: s.now().UTC()}
	s.mu.Unlock()
	return s.url(objectPath), nil
}

// List 列出前缀下的对象
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FileMetadata, 0)
	for p, obj := range s.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, FileMetadata{
			Name:        p,
			URL:         s.url(p),
			FileName:    path.Base(p),
			UploadedAt:  obj.uploadedAt,
			ContentType: obj.contentType,
			Size:        int64(len(obj.data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read 读取对象内容
func (s *MemoryStore) Read(objectPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectPath]
	return obj.data, ok
}

func (s *MemoryStore) url(objectPath string) string {
	return s.baseURL + "/" + objectPath
}

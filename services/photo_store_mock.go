package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// MockPhotoStore keeps photos in memory for tests
type MockPhotoStore struct {
	mu      sync.RWMutex
	objects map[string]storedPhoto
	// FailUploads makes every Put fail
	FailUploads bool
}

type storedPhoto struct {
	contentType string
	content     []byte
}

var _ PhotoStore = (*MockPhotoStore)(nil)

func NewMockPhotoStore() *MockPhotoStore {
	return &MockPhotoStore{objects: make(map[string]storedPhoto)}
}

func (m *MockPhotoStore) Put(ctx context.Context, key, contentType string, fileHeader *multipart.FileHeader) error {
	if m.FailUploads {
		return fmt.Errorf("failed to upload to S3: mock failure")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = storedPhoto{contentType: contentType, content: content}
	m.mu.Unlock()
	return nil
}

func (m *MockPhotoStore) PresignedURL(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("photo not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

func (m *MockPhotoStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// ContentType returns the type a photo was stored with, empty if absent
func (m *MockPhotoStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

// Keys lists every stored key
func (m *MockPhotoStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

package attachment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizmail/backend/internal/domain"
)

// fakeBlobStore 内存 blob 存储，用于测试。
type fakeBlobStore struct {
	objects map[string][]byte
	failAll bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, _ string, data []byte) (string, error) {
	if f.failAll {
		return "", errors.New("storage unavailable")
	}
	f.objects[key] = data
	return "https://blob.example.com/" + key, nil
}

func TestStoreAttachment(t *testing.T) {
	store := newFakeBlobStore()
	m := NewMaterializer(store, zap.NewNop())

	att := &domain.Attachment{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Content:     []byte("pdf content"),
	}
	require.NoError(t, m.Store(context.Background(), "u1", att))

	assert.NotEmpty(t, att.URL)
	assert.Equal(t, int64(11), att.Size)
	// 物化后内容不留在内存
	assert.Nil(t, att.Content)
	assert.Len(t, store.objects, 1)
}

func TestStoreRejectsDangerousExtension(t *testing.T) {
	m := NewMaterializer(newFakeBlobStore(), zap.NewNop())

	att := &domain.Attachment{Filename: "malware.exe", Content: []byte("x")}
	err := m.Store(context.Background(), "u1", att)
	assert.ErrorIs(t, err, ErrDangerousExtension)
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	m := NewMaterializer(newFakeBlobStore(), zap.NewNop())

	att := &domain.Attachment{Filename: "empty.txt"}
	err := m.Store(context.Background(), "u1", att)
	assert.ErrorIs(t, err, ErrEmptyAttachment)
}

func TestStoreAllDropsFailedAttachments(t *testing.T) {
	store := newFakeBlobStore()
	m := NewMaterializer(store, zap.NewNop())

	attachments := []*domain.Attachment{
		{Filename: "good.txt", ContentType: "text/plain", Content: []byte("ok")},
		{Filename: "bad.exe", Content: []byte("x")},
		{Filename: "also-good.png", ContentType: "image/png", Content: []byte("png")},
	}

	kept := m.StoreAll(context.Background(), "u1", attachments)
	require.Len(t, kept, 2)
	assert.Equal(t, "good.txt", kept[0].Filename)
	assert.Equal(t, "also-good.png", kept[1].Filename)
}

func TestStoreAllFailsOpenWhenStorageDown(t *testing.T) {
	store := newFakeBlobStore()
	store.failAll = true
	m := NewMaterializer(store, zap.NewNop())

	kept := m.StoreAll(context.Background(), "u1", []*domain.Attachment{
		{Filename: "a.txt", ContentType: "text/plain", Content: []byte("x")},
	})
	// 存储故障时附件丢弃，不阻断消息保存
	assert.Empty(t, kept)
}

func TestInlineFetchesContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("remote content"))
	}))
	defer server.Close()

	m := NewMaterializer(newFakeBlobStore(), zap.NewNop())

	att := &domain.Attachment{Filename: "doc.txt", URL: server.URL + "/doc.txt"}
	require.NoError(t, m.Inline(context.Background(), att))
	assert.Equal(t, []byte("remote content"), att.Content)
}

func TestInlineReusesInMemoryContent(t *testing.T) {
	m := NewMaterializer(newFakeBlobStore(), zap.NewNop())

	att := &domain.Attachment{Filename: "doc.txt", Content: []byte("already here")}
	require.NoError(t, m.Inline(context.Background(), att))
	assert.Equal(t, []byte("already here"), att.Content)
}

func TestInlineAllDropsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := NewMaterializer(newFakeBlobStore(), zap.NewNop())

	kept := m.InlineAll(context.Background(), []*domain.Attachment{
		{Filename: "gone.txt", URL: server.URL + "/gone.txt"},
		{Filename: "cached.txt", Content: []byte("x")},
	})
	require.Len(t, kept, 1)
	assert.Equal(t, "cached.txt", kept[0].Filename)
}

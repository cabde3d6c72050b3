// internal/services/payload_service_test.go
package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qironman/zenapp/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://localhost:8001"

// writeChapter 在临时书目录下写入章节文件，返回 booksDir
func writeChapter(t *testing.T, bookSlug, chapterSlug, content string) string {
	t.Helper()
	booksDir := t.TempDir()

	chaptersDir := filepath.Join(booksDir, bookSlug, "chapters")
	require.NoError(t, os.MkdirAll(chaptersDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(chaptersDir, chapterSlug+".md"), []byte(content), 0644))
	return booksDir
}

func writeImage(t *testing.T, booksDir, bookSlug, filename string) {
	t.Helper()
	imagesDir := filepath.Join(booksDir, bookSlug, "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, filename), []byte("fake-image"), 0644))
}

func TestBuildPayloadTitleAndBody(t *testing.T) {
	content := "# 第一章 归来\n\n正文第一段。\n\n## 小节标题\n\n正文第二段。\n"
	booksDir := writeChapter(t, "book1", "chapter-1", content)

	svc := NewPayloadService(booksDir, baseURL)
	payload, err := svc.BuildPayload("book1", "chapter-1")
	require.NoError(t, err)

	assert.Equal(t, "第一章 归来", payload.Title)
	// 一级标题被提走，二级标题降级为普通文本
	assert.NotContains(t, payload.Content, "# 第一章")
	assert.NotContains(t, payload.Content, "## 小节标题")
	assert.Contains(t, payload.Content, "小节标题")
	assert.Contains(t, payload.Content, "正文第一段。")
}

func TestBuildPayloadTitleFallsBackToSlug(t *testing.T) {
	booksDir := writeChapter(t, "book1", "chapter-2", "没有标题的正文。\n")

	svc := NewPayloadService(booksDir, baseURL)
	payload, err := svc.BuildPayload("book1", "chapter-2")
	require.NoError(t, err)

	assert.Equal(t, "chapter-2", payload.Title)
}

func TestBuildPayloadImageExtraction(t *testing.T) {
	content := "# 标题\n\n![封面](/api/books/book1/images/cover.jpg)\n\n正文。\n\n" +
		"<img src='https://cdn.example.com/pic.png'>\n\n" +
		"![重复](/api/books/book1/images/cover.jpg)\n"
	booksDir := writeChapter(t, "book1", "ch", content)
	writeImage(t, booksDir, "book1", "cover.jpg")

	svc := NewPayloadService(booksDir, baseURL)
	payload, err := svc.BuildPayload("book1", "ch")
	require.NoError(t, err)

	// 去重且保持首次出现顺序
	assert.Equal(t, []string{
		baseURL + "/api/books/book1/images/cover.jpg",
		"https://cdn.example.com/pic.png",
	}, payload.ImageURLs)

	// 只有本书且文件存在的图片才有本地路径
	require.Len(t, payload.LocalImagePaths, 1)
	assert.Equal(t, filepath.Join(booksDir, "book1", "images", "cover.jpg"), payload.LocalImagePaths[0])

	// 图片独占行不进正文
	assert.NotContains(t, payload.Content, "![封面]")
	assert.NotContains(t, payload.Content, "<img")
}

func TestBuildPayloadCrossBookImageHasNoLocalPath(t *testing.T) {
	content := "# 标题\n\n![别的书](/api/books/other/images/pic.jpg)\n\n正文。\n"
	booksDir := writeChapter(t, "book1", "ch", content)
	writeImage(t, booksDir, "other", "pic.jpg")

	svc := NewPayloadService(booksDir, baseURL)
	payload, err := svc.BuildPayload("book1", "ch")
	require.NoError(t, err)

	// 公网 URL 保留，本地路径不给
	assert.Len(t, payload.ImageURLs, 1)
	assert.Empty(t, payload.LocalImagePaths)
}

func TestBuildPayloadBareFilenameResolvesToBookImages(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch", "# 标题\n\n![图](cover.png)\n\n正文。\n")

	svc := NewPayloadService(booksDir, baseURL)
	payload, err := svc.BuildPayload("book1", "ch")
	require.NoError(t, err)

	assert.Equal(t, []string{baseURL + "/api/books/book1/images/cover.png"}, payload.ImageURLs)
}

func TestBuildPayloadChapterNotFound(t *testing.T) {
	svc := NewPayloadService(t.TempDir(), baseURL)
	_, err := svc.BuildPayload("book1", "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestBuildPayloadRejectsPathTraversal(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch", "# ok\n")

	svc := NewPayloadService(booksDir, baseURL)
	_, err := svc.BuildPayload("book1", "../../etc/passwd")
	require.Error(t, err)
}

func TestContentHashDeterministic(t *testing.T) {
	h1, err := ContentHash("标题", "正文", []string{"http://a/1.jpg"})
	require.NoError(t, err)
	h2, err := ContentHash("标题", "正文", []string{"http://a/1.jpg"})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestContentHashChangesWithContent(t *testing.T) {
	h1, _ := ContentHash("标题", "正文", nil)
	h2, _ := ContentHash("标题", "正文改了", nil)
	h3, _ := ContentHash("标题", "正文", []string{"http://a/1.jpg"})

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestContentHashNilAndEmptyImagesEqual(t *testing.T) {
	h1, _ := ContentHash("t", "c", nil)
	h2, _ := ContentHash("t", "c", []string{})
	assert.Equal(t, h1, h2)
}

func TestIsImageURL(t *testing.T) {
	assert.True(t, IsImageURL("http://x/a.jpg"))
	assert.True(t, IsImageURL("http://x/a.HEIC"))
	assert.False(t, IsImageURL("http://x/a.mp4"))
	assert.False(t, IsImageURL("http://x/page"))
}

// internal/services/payload_service.go
package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/models"
	"github.com/yuin/goldmark"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*]\(([^)]+)\)`)
	htmlImageRe     = regexp.MustCompile(`(?i)<img[^>]+src=['"]([^'"]+)['"]`)
	imageOnlyLineRe = regexp.MustCompile(`^!\[[^\]]*]\([^)]+\)\s*$`)
	imageExtRe      = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp|gif|heic)$`)
	headingMarkRe   = regexp.MustCompile(`^#+\s*`)
)

// PayloadService 把章节 markdown 变成规范化的发布载荷。
// 纯计算，除读取章节文件和检查本地图片外没有其他副作用。
type PayloadService struct {
	booksDir      string
	publicBaseURL string
	markdown      goldmark.Markdown
}

// NewPayloadService 创建载荷构建服务
func NewPayloadService(booksDir, publicBaseURL string) *PayloadService {
	return &PayloadService{
		booksDir:      booksDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		markdown:      goldmark.New(),
	}
}

// BuildPayload 构建章节的规范化发布载荷
func (s *PayloadService) BuildPayload(bookSlug, chapterSlug string) (*models.ChapterPayload, error) {
	content, err := s.readChapter(bookSlug, chapterSlug)
	if err != nil {
		return nil, err
	}

	title, body := extractTitleAndBody(content, chapterSlug)
	refs := extractImageRefs(content)

	imageURLs := make([]string, 0, len(refs))
	localPaths := make([]string, 0, len(refs))
	for _, ref := range refs {
		imageURLs = append(imageURLs, s.imageRefToPublicURL(bookSlug, ref))
		if local := s.imageRefToLocalPath(bookSlug, ref); local != "" {
			localPaths = append(localPaths, local)
		}
	}

	hash, err := ContentHash(title, body, imageURLs)
	if err != nil {
		return nil, errors.NewProcessingError("计算内容哈希失败", err)
	}

	return &models.ChapterPayload{
		Title:           title,
		Content:         body,
		ImageURLs:       imageURLs,
		LocalImagePaths: localPaths,
		ContentHash:     hash,
	}, nil
}

// PreviewHTML 用 goldmark 渲染章节的 HTML 预览
func (s *PayloadService) PreviewHTML(bookSlug, chapterSlug string) (string, string, error) {
	content, err := s.readChapter(bookSlug, chapterSlug)
	if err != nil {
		return "", "", err
	}

	title, _ := extractTitleAndBody(content, chapterSlug)

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(content), &buf); err != nil {
		return "", "", errors.NewProcessingError("渲染章节预览失败", err)
	}
	return title, buf.String(), nil
}

// ContentHash 对 {title, content, images} 的规范化 JSON 做 sha256。
// encoding/json 对 map 按键名排序，保证相同输入总是得到相同哈希。
func ContentHash(title, body string, imageURLs []string) (string, error) {
	if imageURLs == nil {
		imageURLs = []string{}
	}
	canonical, err := json.Marshal(map[string]interface{}{
		"title":   title,
		"content": body,
		"images":  imageURLs,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (s *PayloadService) readChapter(bookSlug, chapterSlug string) (string, error) {
	chaptersDir := filepath.Join(s.booksDir, bookSlug, "chapters")
	chapterPath, err := ensureSafePath(chaptersDir, filepath.Join(chaptersDir, chapterSlug+".md"))
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(chapterPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("Chapter not found", err)
		}
		return "", errors.NewProcessingError("读取章节失败", err)
	}
	return string(data), nil
}

// extractTitleAndBody 提取标题与正文。
// 第一行一级标题作为标题；图片独占行丢弃；其余标题行降级为普通文本
// （小红书没有标题层级的概念，保留文字即可）。
func extractTitleAndBody(content, chapterSlug string) (string, string) {
	title := chapterSlug
	titleFound := false
	var bodyLines []string

	content = strings.ReplaceAll(content, "\r\n", "\n")
	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)

		if !titleFound && strings.HasPrefix(stripped, "# ") {
			if maybeTitle := strings.TrimSpace(stripped[2:]); maybeTitle != "" {
				title = maybeTitle
			}
			titleFound = true
			continue
		}

		if imageOnlyLineRe.MatchString(stripped) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(stripped), "<img ") {
			continue
		}

		if strings.HasPrefix(stripped, "#") {
			bodyLines = append(bodyLines, headingMarkRe.ReplaceAllString(stripped, ""))
		} else {
			bodyLines = append(bodyLines, line)
		}
	}

	return title, strings.TrimSpace(strings.Join(bodyLines, "\n"))
}

// extractImageRefs 按首次出现顺序提取去重后的图片引用
func extractImageRefs(content string) []string {
	var refs []string
	seen := make(map[string]bool)

	for _, match := range markdownImageRe.FindAllStringSubmatch(content, -1) {
		ref := normalizeMarkdownURL(match[1])
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	for _, match := range htmlImageRe.FindAllStringSubmatch(content, -1) {
		ref := strings.TrimSpace(match[1])
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	return refs
}

// normalizeMarkdownURL 去掉尖括号包裹和尾部的引号标题
func normalizeMarkdownURL(url string) string {
	cleaned := strings.TrimSpace(url)
	if strings.HasPrefix(cleaned, "<") && strings.HasSuffix(cleaned, ">") {
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	}
	if idx := strings.Index(cleaned, ` "`); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	if idx := strings.Index(cleaned, ` '`); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimSpace(cleaned)
}

// imageRefToPublicURL 把图片引用解析为公网可达的 URL
func (s *PayloadService) imageRefToPublicURL(bookSlug, imageRef string) string {
	if strings.HasPrefix(imageRef, "http://") || strings.HasPrefix(imageRef, "https://") {
		return imageRef
	}

	if strings.HasPrefix(imageRef, "/") {
		return s.publicBaseURL + imageRef
	}

	imageRef = strings.TrimPrefix(imageRef, "./")

	if strings.HasPrefix(imageRef, "api/") {
		return s.publicBaseURL + "/" + imageRef
	}

	if !strings.Contains(imageRef, "/") && imageExtRe.MatchString(imageRef) {
		return fmt.Sprintf("%s/api/books/%s/images/%s", s.publicBaseURL, bookSlug, imageRef)
	}

	return s.publicBaseURL + "/" + strings.TrimLeft(imageRef, "/")
}

// imageRefToLocalPath 仅当引用指向本书自己的图片接口且文件存在时返回本地路径。
// 跨书引用或解析失败都返回空串，上传时跳过，但公网 URL 列表仍然保留。
func (s *PayloadService) imageRefToLocalPath(bookSlug, imageRef string) string {
	path := imageRef
	if parsed, err := neturl.Parse(imageRef); err == nil && parsed.Scheme != "" {
		path = parsed.Path
	}

	if !strings.HasPrefix(path, "/api/books/") {
		return ""
	}

	// ['', 'api', 'books', '{book}', 'images', '{filename}']
	parts := strings.Split(path, "/")
	if len(parts) < 6 || parts[4] != "images" {
		return ""
	}

	refBook := parts[3]
	filename := parts[5]
	if refBook != bookSlug {
		return ""
	}

	imagesDir := filepath.Join(s.booksDir, bookSlug, "images")
	localPath, err := ensureSafePath(imagesDir, filepath.Join(imagesDir, filename))
	if err != nil {
		return ""
	}
	if _, err := os.Stat(localPath); err != nil {
		return ""
	}
	return localPath
}

// ensureSafePath 确保子路径位于基准目录之内
func ensureSafePath(baseDir, childPath string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", errors.NewValidationError("Invalid path", err)
	}
	childAbs, err := filepath.Abs(childPath)
	if err != nil {
		return "", errors.NewValidationError("Invalid path", err)
	}

	rel, err := filepath.Rel(baseAbs, childAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.NewValidationError("Invalid path", nil)
	}
	return childAbs, nil
}

// IsImageURL 判断 URL 是否带有受支持的图片扩展名
func IsImageURL(url string) bool {
	return imageExtRe.MatchString(url)
}

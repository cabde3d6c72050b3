// internal/browser/capture.go
package browser

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
)

// noteURLRe 匹配笔记详情页 URL 并捕获笔记 ID
var noteURLRe = regexp.MustCompile(`https?://www\.xiaohongshu\.com/(?:explore|discovery/item)/([0-9a-zA-Z]+)`)

// NoteCapture 在发布流程期间监听笔记接口的响应，提取笔记 ID。
// 单槽设计：只保留第一条成功提取的结果，后续响应直接忽略。
type NoteCapture struct {
	mu   sync.Mutex
	id   string
	url  string
	base string
}

// AttachNoteCapture 在会话上挂载笔记接口响应监听。
// 必须先 EnableNetwork，否则收不到网络事件。
func AttachNoteCapture(ctx context.Context, noteURLBase string) *NoteCapture {
	capture := &NoteCapture{base: strings.TrimRight(noteURLBase, "/")}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}

		respURL := resp.Response.URL
		if !strings.Contains(respURL, "edith.xiaohongshu.com") ||
			!strings.Contains(respURL, "/web_api/sns/v2/note") {
			return
		}

		// 响应体必须在目标的执行器上下文里取，且不能阻塞事件回调
		requestID := resp.RequestID
		go func() {
			c := chromedp.FromContext(ctx)
			if c == nil || c.Target == nil {
				return
			}
			ectx := cdp.WithExecutor(ctx, c.Target)
			body, err := network.GetResponseBody(requestID).Do(ectx)
			if err != nil {
				return
			}
			capture.ingest(body)
		}()
	})

	return capture
}

// ingest 从笔记接口响应体里提取笔记 ID 和分享链接
func (c *NoteCapture) ingest(body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != "" {
		return
	}

	shareLink := gjson.GetBytes(body, "share_link").String()
	if match := noteURLRe.FindStringSubmatch(shareLink); match != nil {
		c.id = match[1]
		c.url = match[0]
		return
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return
	}

	noteID := data.Get("id").String()
	if noteID == "" {
		noteID = data.Get("note_id").String()
	}
	if noteID == "" {
		return
	}

	c.id = noteID
	if shareLink != "" {
		c.url = shareLink
	} else {
		c.url = c.base + "/" + noteID
	}
}

// Result 返回已捕获的笔记 ID 和 URL，未捕获时都为空串
func (c *NoteCapture) Result() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.url
}

// ExtractNoteFromQuery 从页面 URL 的查询参数中提取笔记 ID。
// 发布成功后创作平台常跳转到带 noteId 参数的成功页。
func ExtractNoteFromQuery(pageURL, noteURLBase string) (string, string) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}

	query := parsed.Query()
	for _, key := range []string{"noteId", "note_id", "id"} {
		if noteID := query.Get(key); noteID != "" {
			return noteID, strings.TrimRight(noteURLBase, "/") + "/" + noteID
		}
	}
	return "", ""
}

// ExtractNoteFromHTML 在页面 HTML 里查找笔记详情页链接
func ExtractNoteFromHTML(html string) (string, string) {
	if match := noteURLRe.FindStringSubmatch(html); match != nil {
		return match[1], match[0]
	}
	return "", ""
}

// internal/browser/selectors.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// SelectorKind 选择器解析方式
type SelectorKind int

const (
	ByCSS SelectorKind = iota
	ByXPath
)

// Selector 一个候选选择器。创作平台前端经常改版，
// 每个目标元素都维护一条候选链，按顺序探测直到命中。
type Selector struct {
	Query string
	Kind  SelectorKind
}

// CSS 构造 CSS 选择器候选
func CSS(query string) Selector { return Selector{Query: query, Kind: ByCSS} }

// XPath 构造 XPath 选择器候选
func XPath(query string) Selector { return Selector{Query: query, Kind: ByXPath} }

// ContainsText 构造按可见文本匹配任意元素的候选
func ContainsText(text string) Selector {
	return XPath(fmt.Sprintf("//*[contains(normalize-space(.), '%s')]", text))
}

// 创作平台发布页的候选选择器链，源自对线上页面结构的观察
var (
	TitleSelectors = []Selector{
		CSS(`textarea[placeholder*='标题']`),
		CSS(`input[placeholder*='标题']`),
		CSS(`div[contenteditable='true'][data-placeholder*='标题']`),
	}

	ContentSelectors = []Selector{
		CSS(`.tiptap.ProseMirror`),
		CSS(`.ProseMirror[contenteditable='true']`),
		CSS(`div[contenteditable='true'][data-placeholder*='正文']`),
		CSS(`div[contenteditable='true'][data-placeholder*='内容']`),
		CSS(`textarea[placeholder*='正文']`),
		CSS(`textarea[placeholder*='内容']`),
		CSS(`div[contenteditable='true'][role='textbox']`),
	}

	UploadInputSelectors = []Selector{
		CSS(`input.upload-input[type='file']`),
		CSS(`input[type='file'][accept*='image']`),
		CSS(`input[type='file']`),
	}

	ImageTabSelectors = []Selector{
		XPath(`//div[contains(normalize-space(.), '上传图文') and not(.//div[contains(normalize-space(.), '上传图文')])]`),
		XPath(`//span[contains(normalize-space(.), '上传图文')]`),
		XPath(`//button[contains(normalize-space(.), '上传图文')]`),
	}

	PublishButtonSelectors = []Selector{
		XPath(`//button[contains(normalize-space(.), '发布笔记')]`),
		XPath(`//button[contains(normalize-space(.), '立即发布')]`),
		XPath(`//button[contains(normalize-space(.), '发布')]`),
	}

	UpdateButtonSelectors = []Selector{
		XPath(`//button[contains(normalize-space(.), '更新')]`),
		XPath(`//button[contains(normalize-space(.), '保存')]`),
		XPath(`//button[contains(normalize-space(.), '发布')]`),
	}

	LoginIndicatorSelectors = []Selector{
		ContainsText("扫码登录"),
		XPath(`//button[contains(normalize-space(.), '登录')]`),
		CSS(`input[placeholder*='手机号']`),
	}
)

// probeItem 单个匹配元素的可交互状态
type probeItem struct {
	Visible    bool `json:"visible"`
	InViewport bool `json:"inViewport"`
	Disabled   bool `json:"disabled"`
}

type probeResult struct {
	Count int         `json:"count"`
	Items []probeItem `json:"items"`
}

// probeJS 在页面里枚举选择器匹配的元素并逐个判断可见性。
// 可见 = 有尺寸且未被样式隐藏；视口内 = 几何中心落在视口里（容差 2px）。
const probeJS = `(() => {
	const query = %s;
	const byXPath = %t;
	let nodes = [];
	if (byXPath) {
		const it = document.evaluate(query, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(query));
	}
	const vw = window.innerWidth, vh = window.innerHeight;
	const items = nodes.map(el => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		const cx = rect.left + rect.width / 2, cy = rect.top + rect.height / 2;
		const inViewport = visible && cx >= -2 && cy >= -2 && cx <= vw + 2 && cy <= vh + 2;
		const aria = (el.getAttribute('aria-disabled') || '').toLowerCase();
		const disabled = !!el.disabled || aria === 'true' || aria === '1';
		return {visible, inViewport, disabled};
	});
	return {count: nodes.length, items};
})()`

// clickJS 点击选择器匹配的第 n 个元素，返回是否找到
const clickJS = `(() => {
	const query = %s;
	const byXPath = %t;
	const index = %d;
	let nodes = [];
	if (byXPath) {
		const it = document.evaluate(query, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(query));
	}
	if (index >= nodes.length) return false;
	nodes[index].click();
	return true;
})()`

// focusJS 聚焦目标元素并尝试直接写入值。
// 原生输入框走 value setter 并派发 input/change 事件；
// 富文本编辑器只能聚焦后全选，由 CDP 层插入文本覆盖选区。
const focusJS = `(() => {
	const query = %s;
	const byXPath = %t;
	const index = %d;
	const value = %s;
	let nodes = [];
	if (byXPath) {
		const it = document.evaluate(query, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(query));
	}
	if (index >= nodes.length) return 'missing';
	const el = nodes[index];
	el.click();
	el.focus();
	const tag = el.tagName.toLowerCase();
	if (tag === 'input' || tag === 'textarea') {
		const proto = tag === 'input' ? window.HTMLInputElement.prototype : window.HTMLTextAreaElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, value);
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return 'value';
	}
	const range = document.createRange();
	range.selectNodeContents(el);
	const sel = window.getSelection();
	sel.removeAllRanges();
	sel.addRange(range);
	return 'rich';
})()`

// probe 探测单个候选选择器的匹配情况，探测失败视为零命中
func (s *Session) probe(sel Selector) probeResult {
	query, _ := json.Marshal(sel.Query)
	js := fmt.Sprintf(probeJS, query, sel.Kind == ByXPath)

	var result probeResult
	if err := s.run(chromedp.Evaluate(js, &result)); err != nil {
		return probeResult{}
	}
	return result
}

// AnyPresent 任一候选在 DOM 中存在即为真
func (s *Session) AnyPresent(candidates []Selector) bool {
	for _, sel := range candidates {
		if s.probe(sel).Count > 0 {
			return true
		}
	}
	return false
}

// AnyVisible 任一候选有可见元素即为真
func (s *Session) AnyVisible(candidates []Selector) bool {
	for _, sel := range candidates {
		for _, item := range s.probe(sel).Items {
			if item.Visible {
				return true
			}
		}
	}
	return false
}

// WaitAnyVisible 轮询等待任一候选变为可见
func (s *Session) WaitAnyVisible(candidates []Selector, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.AnyVisible(candidates) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// ClickFirstInViewport 点击候选链中第一个可见且在视口内的元素
func (s *Session) ClickFirstInViewport(candidates []Selector) (bool, error) {
	return s.clickFirst(candidates, func(item probeItem) bool {
		return item.Visible && item.InViewport
	})
}

// ClickFirstEnabled 点击候选链中第一个可见且未禁用的元素
func (s *Session) ClickFirstEnabled(candidates []Selector) (bool, error) {
	return s.clickFirst(candidates, func(item probeItem) bool {
		return item.Visible && !item.Disabled
	})
}

func (s *Session) clickFirst(candidates []Selector, usable func(probeItem) bool) (bool, error) {
	for _, sel := range candidates {
		result := s.probe(sel)
		for i, item := range result.Items {
			if !usable(item) {
				continue
			}

			query, _ := json.Marshal(sel.Query)
			js := fmt.Sprintf(clickJS, query, sel.Kind == ByXPath, i)

			var clicked bool
			if err := s.run(chromedp.Evaluate(js, &clicked)); err != nil {
				return false, err
			}
			if clicked {
				return true, nil
			}
		}
	}
	return false, nil
}

// FillFirst 向候选链中第一个可见元素写入文本。
// 富文本编辑器在页面内全选后，通过 CDP 插入文本覆盖原有内容。
func (s *Session) FillFirst(candidates []Selector, value string) (bool, error) {
	for _, sel := range candidates {
		result := s.probe(sel)
		for i, item := range result.Items {
			if !item.Visible {
				continue
			}

			query, _ := json.Marshal(sel.Query)
			encoded, _ := json.Marshal(value)
			js := fmt.Sprintf(focusJS, query, sel.Kind == ByXPath, i, encoded)

			var mode string
			if err := s.run(chromedp.Evaluate(js, &mode)); err != nil {
				return false, err
			}

			switch mode {
			case "value":
				return true, nil
			case "rich":
				err := s.run(chromedp.ActionFunc(func(ctx context.Context) error {
					return input.InsertText(value).Do(ctx)
				}))
				if err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}
	return false, nil
}

// UploadFiles 通过候选链中第一个存在的文件输入框上传本地图片。
// 文件输入框通常刻意隐藏，所以只要求存在，不要求可见。
func (s *Session) UploadFiles(candidates []Selector, paths []string) (bool, error) {
	for _, sel := range candidates {
		if sel.Kind != ByCSS {
			continue
		}
		if s.probe(sel).Count == 0 {
			continue
		}

		if err := s.run(chromedp.SetUploadFiles(sel.Query, paths, chromedp.ByQuery)); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

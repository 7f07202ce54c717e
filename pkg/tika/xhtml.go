package tika

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"medimate-go/internal/model"
)

// 这些元素结束时补一个换行，保留段落边界供后续切块使用。
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// ParsePages 解析 Tika 输出的 XHTML，按 <div class="page"> 返回每页文本。
func ParsePages(r io.Reader) ([]model.DocumentPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var pageNodes []*html.Node
	var body *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "body" && body == nil {
				body = n
			}
			if n.Data == "div" && hasClass(n, "page") {
				pageNodes = append(pageNodes, n)
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			find(child)
		}
	}
	find(doc)

	if len(pageNodes) == 0 {
		if body == nil {
			return nil, nil
		}
		text := nodeText(body)
		if text == "" {
			return nil, nil
		}
		return []model.DocumentPage{{Number: 1, Text: text}}, nil
	}

	pages := make([]model.DocumentPage, 0, len(pageNodes))
	for i, n := range pageNodes {
		pages = append(pages, model.DocumentPage{Number: i + 1, Text: nodeText(n)})
	}
	return pages, nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "head" {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

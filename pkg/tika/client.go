// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"medimate-go/internal/config"
	"medimate-go/internal/model"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。timeout 为单次调用的上限，0 表示不限制。
func NewClient(cfg config.TikaConfig, timeout time.Duration) *Client {
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExtractPages 以 XHTML 形式调用 Tika，并按 <div class="page"> 切分出每一页的文本。
// 页序与文档一致；没有分页标记的文档整体作为第 1 页返回。
func (c *Client) ExtractPages(ctx context.Context, fileReader io.Reader, fileName string) ([]model.DocumentPage, error) {
	body, err := c.put(ctx, fileReader, fileName, "text/html")
	if err != nil {
		return nil, err
	}
	pages, err := ParsePages(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 失败: %w", err)
	}
	return pages, nil
}

func (c *Client) put(ctx context.Context, fileReader io.Reader, fileName, accept string) ([]byte, error) {
	// 自动根据文件名推断 MIME 类型
	contentType := detectMimeType(fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.Bytes(), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		// fallback 默认
		return "application/octet-stream"
	}
	return mimeType
}

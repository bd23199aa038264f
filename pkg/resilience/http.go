package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	xerr "equisense/pkg/error"
)

// ErrTransient 可重试的网络错误（超时、5xx、429、连接中断）
var ErrTransient = xerr.NewError(xerr.CodeTransientNetwork, "transient network error")

// ErrUpstreamStatus 不可重试的上游状态码（除 429 之外的 4xx）
var ErrUpstreamStatus = xerr.NewError(xerr.CodeUpstreamStatus, "upstream rejected request")

// Get 在弹性调用约定下发起 GET 请求并返回响应体
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return Call(ctx, c, func(ctx context.Context) ([]byte, error) {
		return c.doGet(ctx, url, header)
	})
}

// doGet 单次 GET，不含重试；错误按状态码映射到错误码
func (c *Client) doGet(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerr.WrapError(xerr.CodeUpstreamStatus, "create request failed", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, xerr.WrapError(xerr.CodeTransientNetwork, "HTTP request failed", err).
			WithContext("endpoint", c.name)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, xerr.WrapError(xerr.CodeTransientNetwork, "read response failed", err)
	}

	if err := StatusError(resp.StatusCode); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, xerr.NewError(xerr.CodeTransientNetwork, "empty response").WithContext("endpoint", c.name)
	}
	return body, nil
}

// StatusError 把 HTTP 状态码映射为错误：2xx 返回 nil，5xx 与 429 为瞬时错误，其余为不可重试的上游错误
func StatusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return xerr.NewError(xerr.CodeTransientNetwork, fmt.Sprintf("HTTP status error: %d", status)).
			WithContext("status", status)
	default:
		return xerr.NewError(xerr.CodeUpstreamStatus, fmt.Sprintf("HTTP status error: %d", status)).
			WithContext("status", status)
	}
}

// IsTransient 错误链上是否为可重试的网络错误
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client 带超时与重试的 JSON HTTP 客户端
type Client struct {
	client *resty.Client
}

// Options 客户端参数
type Options struct {
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
}

// NewClient 创建客户端；resty 会自动读取 HTTP_PROXY/HTTPS_PROXY
func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 2 * time.Second, nil
			}
			return 0, nil
		})
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeader("Accept", "application/json")
	return &Client{client: client}
}

// GetJSON GET 请求并把响应体解码到 out
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return errors.Wrapf(err, "GET %s", endpoint)
	}
	if err := ParseHTTPError(resp); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "解析 %s 响应失败", endpoint)
	}
	return nil
}

// ParseHTTPError 非 2xx 响应转为错误
func ParseHTTPError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 256 {
		body = body[:256]
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), body)
}

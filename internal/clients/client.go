package clients

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/newplayman/exchange-operations/internal/ratelimit"
)

// 可覆盖的时间函数，便于测试。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// ServiceConfig 下游 REST 服务连接参数
type ServiceConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RetryCount int
	Limiter    ratelimit.Limiter
	HTTPClient *http.Client
}

// HTTPError 下游返回非 2xx
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// restClient 封装 resty：签名、限流、仅对 GET 重试
type restClient struct {
	name string
	http *resty.Client
}

func newRestClient(name string, cfg ServiceConfig) *restClient {
	var c *resty.Client
	if cfg.HTTPClient != nil {
		c = resty.NewWithClient(cfg.HTTPClient)
	} else {
		c = resty.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		})

	limiter := cfg.Limiter
	apiKey, secret := cfg.APIKey, cfg.APISecret
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if limiter != nil {
			if err := limiter.Wait(r.Context()); err != nil {
				return err
			}
		}
		if apiKey != "" {
			// 重试时 r.URL 已被展开为完整地址，统一按解析后的 path/query 签名
			u, err := url.Parse(r.URL)
			if err != nil {
				return err
			}
			ts := timeNowMillis()
			r.SetHeader(HeaderAPIKey, apiKey)
			r.SetHeader(HeaderTimestamp, strconv.FormatInt(ts, 10))
			r.SetHeader(HeaderSignature, SignRequest(r.Method, u.Path, u.Query(), ts, secret))
		}
		return nil
	})

	return &restClient{name: name, http: c}
}

// get 404 返回 found=false，其他非 2xx 返回 *HTTPError
func (c *restClient) get(ctx context.Context, call, path string, query url.Values, out any) (bool, error) {
	start := time.Now()
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err == nil && resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		err = &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	metrics.ObserveRemote(c.name+"."+call, start, err)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", c.name, call, err)
	}
	return resp.StatusCode() != http.StatusNotFound, nil
}

// ping 存活检查
func (c *restClient) ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/isalive")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// SignRequest HMAC-SHA256(secret, method&path&排序后的 query&timestamp)
func SignRequest(method, path string, query url.Values, ts int64, secret string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('&')
	b.WriteString(path)
	for _, k := range keys {
		for _, v := range query[k] {
			b.WriteByte('&')
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	b.WriteString("&timestamp=")
	b.WriteString(strconv.FormatInt(ts, 10))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

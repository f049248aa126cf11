package request

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request is the shared client for outbound feeds; proxy settings follow
// HTTP_PROXY/HTTPS_PROXY.
var Request = New(30*time.Second, 0)

// New builds a resty client with the proxy-aware transport. retries == 0
// disables automatic retries.
func New(timeout time.Duration, retries int) *resty.Client {
	c := resty.New().SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment, // 通用适配环境变量
	})
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	if retries > 0 {
		c.SetRetryCount(retries)
	}
	return c
}

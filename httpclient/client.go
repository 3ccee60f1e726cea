// Package httpclient backs httpRequest nodes with a shared outbound client.
package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zapflow/zapflow/engine"
)

type Client struct {
	client *resty.Client
}

var _ engine.HttpClient = new(Client)

func New(timeout time.Duration) *Client {
	return &Client{
		client: resty.New().SetTimeout(timeout),
	}
}

func (c *Client) Do(ctx context.Context, method string, url string, headers map[string]string, body string) (int, string, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeaders(headers)
	if body != "" {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode(), string(resp.Body()), nil
}

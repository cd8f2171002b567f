package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL      = "https://open.feishu.cn"
	contentType = "application/json; charset=utf-8"

	tokenPath   = "/open-apis/auth/v3/app_access_token/internal"
	contentPath = "/open-apis/docs/v1/content"
)

// Client talks to the Feishu open platform: it exchanges app credentials for
// a short-lived app access token and fetches reference documents as markdown.
type Client struct {
	appID     string
	appSecret string
	logger    *zap.Logger

	HTTPClient *http.Client
	APIURL     string
}

// Token is a short-lived access credential for document reads.
type Token struct {
	Value         string
	ExpireSeconds int
}

func New(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		APIURL:    apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type tokenResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	AppAccessToken string `json:"app_access_token"`
	Expire         int    `json:"expire"`
}

// AppAccessToken requests a fresh app access token. A non-zero platform code
// in the response body is a failure even when HTTP reports 200.
func (c *Client) AppAccessToken(ctx context.Context) (*Token, error) {
	payload, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var response tokenResponse
	if err := c.do(req, &response); err != nil {
		return nil, fmt.Errorf("app access token request: %w", err)
	}

	if response.Code != 0 {
		return nil, fmt.Errorf("app access token refused: code %d: %s", response.Code, response.Msg)
	}

	if response.AppAccessToken == "" {
		return nil, fmt.Errorf("app access token response is empty")
	}

	return &Token{Value: response.AppAccessToken, ExpireSeconds: response.Expire}, nil
}

type contentResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// DocContent fetches the markdown body of the document identified by docToken
// using the provided access token.
func (c *Client) DocContent(ctx context.Context, docToken, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+contentPath, nil)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("doc_token", docToken)
	q.Set("doc_type", "docx")
	q.Set("content_type", "markdown")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	var response contentResponse
	if err := c.do(req, &response); err != nil {
		return "", fmt.Errorf("document content request: %w", err)
	}

	if response.Code != 0 {
		return "", fmt.Errorf("document content refused: code %d: %s", response.Code, response.Msg)
	}

	return response.Data.Content, nil
}

func (c *Client) do(req *http.Request, target interface{}) error {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

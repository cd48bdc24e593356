package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// APIClient is a thin HTTP client over the detalhar intake API.
type APIClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewAPIClient builds an APIClient from the bound api.url/api.key settings.
func NewAPIClient() *APIClient {
	baseURL := viper.GetString("api.url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &APIClient{
		BaseURL: baseURL,
		APIKey:  viper.GetString("api.key"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) do(req *http.Request, target interface{}) error {
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("api error: %d: %s", resp.StatusCode, string(body))
	}
	if target == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, target)
}

// Get issues a GET request and decodes the JSON response into target.
func (c *APIClient) Get(path string, target interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// Post issues a POST request with body marshaled as JSON, decoding the
// response into target (nil to discard it).
func (c *APIClient) Post(path string, body, target interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}

package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"med-search-go/internal/config"
	"med-search-go/pkg/log"
)

// CLIPClient talks to a CLIP encoding server that exposes /encode/text and
// /encode/image. The model itself is an external collaborator, consumed as an
// opaque encode(input) -> vector service.
type CLIPClient struct {
	serverURL string
	model     string
	client    *http.Client
}

// NewCLIPClient creates a new CLIP client instance.
func NewCLIPClient(cfg config.CLIPConfig) *CLIPClient {
	return &CLIPClient{
		serverURL: cfg.ServerURL,
		model:     cfg.Model,
		client:    &http.Client{},
	}
}

// ImageResult is the tagged outcome of encoding one image. A failed decode on
// the server side produces a skip reason instead of a silent zero vector, so
// the caller decides whether degraded entries enter the index.
type ImageResult struct {
	Vector     []float32
	SkipReason string
}

// Skipped reports whether the image was not encodable.
func (r ImageResult) Skipped() bool {
	return r.SkipReason != ""
}

type clipTextRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type clipImageRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64
}

type clipResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// EncodeText returns the CLIP text embedding for a query string.
func (c *CLIPClient) EncodeText(ctx context.Context, text string) ([]float32, error) {
	var resp clipResponse
	if err := c.post(ctx, "/encode/text", clipTextRequest{Model: c.model, Text: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("received empty clip text embedding")
	}
	return resp.Embedding, nil
}

// EncodeImage returns the CLIP image embedding for raw image bytes.
// 服务端解码失败（损坏图片）返回带原因的跳过结果，而不是让整批失败。
func (c *CLIPClient) EncodeImage(ctx context.Context, imageBytes []byte) (ImageResult, error) {
	reqBody := clipImageRequest{
		Model: c.model,
		Image: base64.StdEncoding.EncodeToString(imageBytes),
	}

	var resp clipResponse
	if err := c.post(ctx, "/encode/image", reqBody, &resp); err != nil {
		return ImageResult{}, err
	}
	if resp.Error != "" {
		log.Warnf("[CLIPClient] 图片编码被跳过: %s", resp.Error)
		return ImageResult{SkipReason: resp.Error}, nil
	}
	if len(resp.Embedding) == 0 {
		return ImageResult{SkipReason: "empty embedding from clip server"}, nil
	}
	return ImageResult{Vector: resp.Embedding}, nil
}

func (c *CLIPClient) post(ctx context.Context, path string, body interface{}, out *clipResponse) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal clip request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.serverURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create clip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[CLIPClient] 调用 CLIP 服务失败, path: %s, error: %v", path, err)
		return fmt.Errorf("failed to call clip server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[CLIPClient] CLIP 服务返回非 200 状态码: %s", resp.Status)
		return fmt.Errorf("clip server returned non-200 status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode clip response: %w", err)
	}
	return nil
}

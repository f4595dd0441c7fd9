package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif" // 支援 GIF
	_ "image/png" // 支援 PNG

	_ "golang.org/x/image/webp" // 支援 WebP
)

// supportedFormats 圖片匯入接受的格式
var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// Normalizer 把使用者提供的圖片（URL 或 base64 data URI）
// 整理成統一的 JPEG data URI，供後續的影像理解策略使用。
type Normalizer struct {
	maxSizeBytes int64
	httpClient   *http.Client
}

// NewNormalizer 創建圖片整理器
func NewNormalizer(maxSizeBytes int64) *Normalizer {
	return &Normalizer{
		maxSizeBytes: maxSizeBytes,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Normalize 驗證並轉換圖片。
// 過大、格式不支援、或根本不是圖片的輸入一律拒絕。
func (n *Normalizer) Normalize(ctx context.Context, imageData string) (string, error) {
	raw, err := n.loadBytes(ctx, imageData)
	if err != nil {
		return "", err
	}

	if int64(len(raw)) > n.maxSizeBytes {
		return "", fmt.Errorf("image size exceeds maximum limit of %d bytes", n.maxSizeBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if !supportedFormats[format] {
		return "", fmt.Errorf("unsupported image format: %s", format)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode image as JPEG: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// loadBytes 取得原始圖片位元組：URL 就下載，否則當作 base64 data URI 解碼
func (n *Normalizer) loadBytes(ctx context.Context, imageData string) ([]byte, error) {
	if strings.HasPrefix(imageData, "http://") || strings.HasPrefix(imageData, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageData, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid image url: %w", err)
		}
		resp, err := n.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download image: status code %d", resp.StatusCode)
		}

		// 多讀一個位元組，超限時能與「剛好等於上限」區分
		raw, err := io.ReadAll(io.LimitReader(resp.Body, n.maxSizeBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read image data: %w", err)
		}
		return raw, nil
	}

	if !strings.HasPrefix(imageData, "data:image/") {
		return nil, fmt.Errorf("invalid image data format")
	}
	parts := strings.SplitN(imageData, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid base64 data format")
	}
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 data: %w", err)
	}
	return raw, nil
}

package assets

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UploadError represents an error response from the remote asset service.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("asset upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPStore talks to a remote media service whose upload endpoint accepts
// signed multipart requests and whose list endpoint pages by cursor.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPStore(baseURL, token string, logger *slog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type listResponse struct {
	Resources  []remoteAsset `json:"resources"`
	NextCursor string        `json:"next_cursor"`
}

type remoteAsset struct {
	AssetID   string  `json:"asset_id"`
	PublicID  string  `json:"public_id"`
	SecureURL string  `json:"secure_url"`
	Folder    string  `json:"folder"`
	Format    string  `json:"format"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration"`
	Bytes     int64   `json:"bytes"`
}

func (r remoteAsset) toAsset() Asset {
	return Asset{
		ID:              r.AssetID,
		PublicID:        r.PublicID,
		PlayableURL:     r.SecureURL,
		Folder:          r.Folder,
		Format:          r.Format,
		Width:           r.Width,
		Height:          r.Height,
		DurationSeconds: r.Duration,
		ByteSize:        r.Bytes,
	}
}

func (s *HTTPStore) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := url.Values{}
	q.Set("prefix", prefix)
	q.Set("max_results", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("next_cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/resources/video?"+q.Encode(), nil)
	if err != nil {
		return ListResult{}, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ListResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ListResult{}, &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ListResult{}, fmt.Errorf("decode list response: %w", err)
	}

	out := ListResult{NextCursor: parsed.NextCursor}
	for _, r := range parsed.Resources {
		out.Assets = append(out.Assets, r.toAsset())
	}
	return out, nil
}

func (s *HTTPStore) UploadSigned(ctx context.Context, name string, data []byte, signed SignedParams, progress ProgressFunc) (Asset, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"api_key":   signed.APIKey,
		"timestamp": strconv.FormatInt(signed.Timestamp, 10),
		"signature": signed.Signature,
	}
	for k, v := range signed.Params {
		fields[k] = v
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return Asset{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return Asset{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Asset{}, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return Asset{}, fmt.Errorf("close multipart writer: %w", err)
	}

	total := int64(buf.Len())
	body := &progressReader{r: &buf, total: total, progress: progress}

	uploadURL := fmt.Sprintf("%s/%s/video/upload", s.baseURL, signed.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return Asset{}, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", w.FormDataContentType())
	s.setHeaders(req)

	if s.logger != nil {
		s.logger.Info("uploading asset",
			"url", uploadURL,
			"name", name,
			"body_bytes", total,
		)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed remoteAsset
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Asset{}, fmt.Errorf("decode upload response: %w", err)
	}
	return parsed.toAsset(), nil
}

func (s *HTTPStore) Rename(ctx context.Context, oldPublicID, newPublicID string) (Asset, error) {
	payload, err := json.Marshal(map[string]string{
		"from_public_id": oldPublicID,
		"to_public_id":   newPublicID,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("marshal rename payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/resources/video/rename", bytes.NewReader(payload))
	if err != nil {
		return Asset{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Asset{}, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return Asset{}, ErrDuplicateID
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Asset{}, &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed remoteAsset
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Asset{}, fmt.Errorf("decode rename response: %w", err)
	}
	return parsed.toAsset(), nil
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.baseURL+"/resources/video/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("X-Cloudcut-Request-Id", generateRequestID())
}

// progressReader reports bytes consumed from the request body, which is the
// closest visible proxy for upload transfer progress.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.progress != nil {
			p.progress(p.sent, p.total)
		}
	}
	return n, err
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

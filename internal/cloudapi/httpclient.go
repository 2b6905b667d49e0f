package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aurasafe/recsync/internal/common"
	"github.com/aurasafe/recsync/internal/logging"
)

// Policy-pause codes the backend returns when an account may not upload.
const (
	CodeProRequired   = "PRO_REQUIRED"
	CodeGraceReadOnly = "GRACE_READ_ONLY"
)

// tokenRefreshLeeway is how close to expiry an access token may get before
// we refresh it proactively instead of burning a request on a 401.
const tokenRefreshLeeway = 30 * time.Second

// HTTPClient implements Client over the backend's JSON API. Safe for
// concurrent use: upload processing and the download reconciler share one
// client across goroutines.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	log       logging.Logger
	userAgent string

	// mu guards the token pair; a refresh may race with other requests.
	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(baseURL string, accessToken, refreshToken string, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:          log,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		userAgent:    "recsync/1.0",
	}
}

// SetTimeout changes the per-request timeout.
func (h *HTTPClient) SetTimeout(d time.Duration) {
	if d > 0 {
		h.client.Timeout = d
	}
}

// SetTokens replaces the auth tokens, e.g. after an external re-login.
func (h *HTTPClient) SetTokens(access, refresh string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accessToken = access
	h.refreshToken = refresh
}

// tokens returns a consistent snapshot of the token pair.
func (h *HTTPClient) tokens() (access, refresh string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accessToken, h.refreshToken
}

func (h *HTTPClient) CreateUploadDestination(ctx context.Context, req UploadDestinationRequest) (*UploadDestination, error) {
	var dest UploadDestination
	if err := h.do(ctx, http.MethodPost, "/v1/recordings/upload-destination", req, &dest); err != nil {
		return nil, err
	}
	if dest.RecordingID == "" || dest.SignedURL == "" {
		return nil, fmt.Errorf("backend returned incomplete upload destination")
	}
	return &dest, nil
}

func (h *HTTPClient) MarkUploadComplete(ctx context.Context, recordingID string, sizeBytes, durationMs int64, mimeType string) error {
	body := struct {
		SizeBytes  int64  `json:"sizeBytes"`
		DurationMs int64  `json:"durationMs"`
		MimeType   string `json:"mimeType"`
	}{sizeBytes, durationMs, mimeType}
	return h.do(ctx, http.MethodPost, "/v1/recordings/"+recordingID+"/complete", body, nil)
}

func (h *HTTPClient) MarkUploadFailed(ctx context.Context, recordingID, errorCode, errorMessage string) error {
	body := struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}{errorCode, errorMessage}
	return h.do(ctx, http.MethodPost, "/v1/recordings/"+recordingID+"/failed", body, nil)
}

func (h *HTTPClient) ListPendingAutoDownloads(ctx context.Context, limit int) ([]CloudRecording, error) {
	var resp struct {
		Recordings []CloudRecording `json:"recordings"`
	}
	path := "/v1/recordings/auto-downloads?limit=" + strconv.Itoa(limit)
	if err := h.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Recordings, nil
}

func (h *HTTPClient) GetDownloadURL(ctx context.Context, recordingID string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := h.do(ctx, http.MethodGet, "/v1/recordings/"+recordingID+"/download-url", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (h *HTTPClient) CompleteAutoDownload(ctx context.Context, recordingID string) error {
	return h.do(ctx, http.MethodPost, "/v1/recordings/"+recordingID+"/auto-download-complete", nil, nil)
}

// do performs one JSON request, refreshing the access token when it is
// about to expire and retrying once after an expiry 401.
func (h *HTTPClient) do(ctx context.Context, method, path string, body, result any) error {
	if h.tokenNeedsRefresh() {
		if err := h.refresh(ctx); err != nil {
			h.log.Warn(ctx, "proactive token refresh failed", "error", err)
		}
	}

	status, respBody, err := h.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}

	if _, refresh := h.tokens(); status == http.StatusUnauthorized && refresh != "" {
		if err := h.refresh(ctx); err != nil {
			return common.ErrUnauthorized
		}
		status, respBody, err = h.roundTrip(ctx, method, path, body)
		if err != nil {
			return err
		}
	}

	if status >= 400 {
		return h.mapError(status, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (h *HTTPClient) roundTrip(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	if access, _ := h.tokens(); access != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, b, nil
}

// tokenNeedsRefresh inspects the unverified JWT claims; verification is the
// server's job, the client only needs the expiry.
func (h *HTTPClient) tokenNeedsRefresh() bool {
	access, refresh := h.tokens()
	if access == "" || refresh == "" {
		return false
	}
	token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < tokenRefreshLeeway
}

func (h *HTTPClient) refresh(ctx context.Context) error {
	_, refresh := h.tokens()
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{refresh}

	status, respBody, err := h.roundTrip(ctx, http.MethodPost, "/v1/auth/refresh", body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return h.mapError(status, respBody)
	}

	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}

	h.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (h *HTTPClient) mapError(status int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errResp)

	switch errResp.Code {
	case CodeProRequired:
		return fmt.Errorf("%w: %s", common.ErrProRequired, errResp.Message)
	case CodeGraceReadOnly:
		return fmt.Errorf("%w: %s", common.ErrGraceReadOnly, errResp.Message)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return common.ErrUnavailable
	}

	if errResp.Message != "" {
		return fmt.Errorf("backend error (%d): %s", status, errResp.Message)
	}
	return fmt.Errorf("backend error: status %d", status)
}

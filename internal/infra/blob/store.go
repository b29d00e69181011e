// Package blob talks to the HTTP object store holding uploads and rendered
// page previews, and mints signed references for external providers.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*Store)(nil)

const maxDownloadBytes = 512 << 20

// ObjectClaims is carried by a signed object reference. A zero page range
// grants the whole object.
type ObjectClaims struct {
	Path      string `json:"path"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
	jwt.RegisteredClaims
}

type Store struct {
	baseURL    string
	bucket     string
	serviceKey string
	secret     []byte
	http       *http.Client
}

func NewStore(cfg config.StorageConfig, client *http.Client) *Store {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Store{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		bucket:     cfg.Bucket,
		serviceKey: cfg.ServiceKey,
		secret:     []byte(cfg.SigningSecret),
		http:       client,
	}
}

func (s *Store) objectURL(path string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapePath(path))
}

func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob download %s: %w", path, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("blob %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("blob download %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

// Upload overwrites any existing object at path.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.authorize(req)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob upload %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("blob upload %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return s.SignedRangeURL(ctx, path, 0, 0, ttl)
}

func (s *Store) SignedRangeURL(_ context.Context, path string, pageStart, pageEnd int, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("blob: signing secret is not configured")
	}
	if pageStart < 0 || pageEnd < pageStart {
		return "", domain.ErrInvalidArgument
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now()
	claims := ObjectClaims{
		Path:      path,
		PageStart: pageStart,
		PageEnd:   pageEnd,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   s.bucket,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/object/sign/%s/%s?token=%s", s.baseURL, url.PathEscape(s.bucket), escapePath(path), url.QueryEscape(signed)), nil
}

// Verify parses a token minted by SignedRangeURL.
func (s *Store) Verify(token string) (*ObjectClaims, error) {
	claims := &ObjectClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid object token")
	}
	return claims, nil
}

func (s *Store) authorize(req *http.Request) {
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("apikey", s.serviceKey)
	}
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

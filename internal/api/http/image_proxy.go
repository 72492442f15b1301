package apihttp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxProxiedImageBytes = int64(10 * 1024 * 1024)

var (
	posterPathPattern = regexp.MustCompile(`^/[A-Za-z0-9_-]+\.(jpg|jpeg|png|webp)$`)
	imageSizes        = map[string]struct{}{
		"w92": {}, "w154": {}, "w185": {}, "w342": {}, "w500": {}, "w780": {}, "original": {},
	}
)

const defaultImageSize = "w500"

var conditionalHeaders = []string{"If-None-Match", "If-Modified-Since"}

// copyValidators passes ETag and Last-Modified through so browsers can revalidate.
func copyValidators(dst, src http.Header) {
	for _, name := range []string{"ETag", "Last-Modified"} {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
}

// handleImageProxy serves catalog posters. Only paths on the configured image
// host can be fetched.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	target, err := s.posterURL(r.URL.Query().Get("path"), r.URL.Query().Get("size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid path")
		return
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	for _, name := range conditionalHeaders {
		if value := r.Header.Get(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := s.imageClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	copyValidators(w.Header(), resp.Header)
	if resp.StatusCode == http.StatusNotModified {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if resp.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxProxiedImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxProxiedImageBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !isRasterImage(contentType) {
		writeError(w, http.StatusBadGateway, "upstream_error", "not a raster image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

// isRasterImage rejects non-images and SVG, which can carry script.
func isRasterImage(contentType string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	mediaType = strings.TrimSpace(mediaType)
	return strings.HasPrefix(mediaType, "image/") && !strings.HasPrefix(mediaType, "image/svg")
}

func (s *Server) posterURL(path, size string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("missing path")
	}
	if !posterPathPattern.MatchString(path) {
		return "", errors.New("invalid path")
	}
	size = strings.TrimSpace(size)
	if size == "" {
		size = defaultImageSize
	}
	if _, ok := imageSizes[size]; !ok {
		return "", errors.New("invalid size")
	}
	return s.imageBase + "/" + size + path, nil
}

// newImageProxyClient refuses redirects that leave the image host.
func newImageProxyClient(base string) *http.Client {
	allowedHost := ""
	if parsed, err := url.Parse(base); err == nil {
		allowedHost = strings.ToLower(parsed.Host)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			if req.URL == nil || strings.ToLower(req.URL.Host) != allowedHost {
				return errors.New("redirect left the image host")
			}
			return nil
		},
	}
}

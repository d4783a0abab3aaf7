package media

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MediaPathPrefix is where a MemoryStore serves its objects when mounted on
// the api router.
const MediaPathPrefix = "/_media/"

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process. It backs local runs and tests and
// serves its own signed URLs over HTTP, so clients and the image fetcher can
// open them like any bucket URL.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	baseURL string
	secret  []byte
	objects map[string]memoryObject
}

// NewMemoryStore signs URLs against baseURL, the externally reachable origin
// of the router the store is mounted on (e.g. http://localhost:8080).
func NewMemoryStore(bucket, baseURL string) *MemoryStore {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("media: read random secret: %v", err))
	}
	return &MemoryStore{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return "", fmt.Errorf("%w: %s", ErrObjectExists, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = memoryObject{data: buf, contentType: contentType}
	return key, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("memory sign %s: object not found", key)
	}
	expires := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", s.sign(key, expires))
	return s.baseURL + MediaPathPrefix + key + "?" + q.Encode(), nil
}

func (s *MemoryStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.bucket + "\n" + key + "\n" + expires))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ServeHTTP answers GET requests for URLs produced by SignedURL. Missing,
// expired or tampered signatures get 403; unknown keys get 404.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, MediaPathPrefix)
	expires := r.URL.Query().Get("expires")
	sig := r.URL.Query().Get("sig")
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || time.Now().Unix() > exp ||
		!hmac.Equal([]byte(sig), []byte(s.sign(key, expires))) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	data, contentType, ok := s.Get(key)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		_ = s.Delete(ctx, key)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, obj.contentType, true
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/cache"
)

// DirectoryConfig points the email channel at the account service.
type DirectoryConfig struct {
	// BaseURL is queried as GET {BaseURL}/{userID}, answering {"email": "..."}.
	BaseURL  string        `env:"ACCOUNT_DIRECTORY_URL"`
	Token    string        `env:"ACCOUNT_DIRECTORY_TOKEN"`
	CacheTTL time.Duration `env:"ACCOUNT_DIRECTORY_CACHE_TTL" envDefault:"10m"`
	CacheMax int           `env:"ACCOUNT_DIRECTORY_CACHE_SIZE" envDefault:"1024"`
	Timeout  time.Duration `env:"ACCOUNT_DIRECTORY_TIMEOUT" envDefault:"5s"`
}

// DirectoryResolver looks recipients up over HTTP and caches the answers,
// misses included.
type DirectoryResolver struct {
	base   string
	token  string
	client *http.Client
	cache  *cache.LRU[uuid.UUID, string]
}

var _ RecipientResolver = (*DirectoryResolver)(nil)

// NewDirectoryResolver creates a resolver for cfg.
func NewDirectoryResolver(cfg DirectoryConfig) (*DirectoryResolver, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("notifications: directory url: %w", err)
	}
	size := cfg.CacheMax
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryResolver{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
		cache:  cache.NewLRU[uuid.UUID, string](size, cache.WithTTL(cfg.CacheTTL)),
	}, nil
}

func (d *DirectoryResolver) EmailFor(ctx context.Context, userID uuid.UUID) (string, error) {
	if addr, ok := d.cache.Get(userID); ok {
		if addr == "" {
			return "", ErrNoRecipient
		}
		return addr, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/"+userID.String(), nil)
	if err != nil {
		return "", fmt.Errorf("notifications: directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notifications: directory lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		d.cache.Put(userID, "")
		return "", ErrNoRecipient
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("notifications: directory lookup: status %d", resp.StatusCode)
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("notifications: directory response: %w", err)
	}
	d.cache.Put(userID, body.Email)
	if body.Email == "" {
		return "", ErrNoRecipient
	}
	return body.Email, nil
}

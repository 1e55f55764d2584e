// Package catalog fetches the vendor channel catalog and reshapes it into
// relay-ready channel groups.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stream-relay-go/pkg/cache"
	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/interfaces"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/playlist"
	"stream-relay-go/pkg/types"

	"github.com/buger/jsonparser"
)

const catalogKey = "catalog"

// Service fetches and caches the upstream channel catalog.
type Service struct {
	client  interfaces.HTTPClient
	log     *logging.Logger
	tokens  interfaces.TokenProvider
	entries *cache.Cache[[]types.Channel]

	endpoint  string
	sigHeader string
	userAgent string
	language  string
	region    string
	baseURL   string
	ttl       time.Duration
	timeout   time.Duration
}

// New creates a catalog service backed by the given cache.
func New(client interfaces.HTTPClient, log *logging.Logger, tokens interfaces.TokenProvider, entries *cache.Cache[[]types.Channel], cfg *config.Config, baseURL string) *Service {
	return &Service{
		client:    client,
		log:       log.WithComponent("catalog"),
		tokens:    tokens,
		entries:   entries,
		endpoint:  cfg.CatalogEndpoint,
		sigHeader: cfg.SignatureHeader,
		userAgent: cfg.DeviceUserAgent,
		language:  cfg.Language,
		region:    cfg.Region,
		baseURL:   baseURL,
		ttl:       cfg.CatalogTTL,
		timeout:   cfg.VendorTimeout,
	}
}

// Channels returns the catalog grouped by the vendor's group name
// (typically a country). If group is non-empty, only that group is
// returned.
func (s *Service) Channels(ctx context.Context, group string) (map[string][]types.Channel, error) {
	all, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]types.Channel)
	for _, ch := range all {
		if group != "" && ch.Group != group {
			continue
		}
		grouped[ch.Group] = append(grouped[ch.Group], ch)
	}
	return grouped, nil
}

func (s *Service) fetch(ctx context.Context) ([]types.Channel, error) {
	if cached, ok := s.entries.Get(catalogKey); ok {
		return cached, nil
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := map[string]string{
		"language": s.language,
		"region":   s.region,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling catalog payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(s.sigHeader, token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading catalog response: %w", err)
	}

	channels, err := s.parse(data)
	if err != nil {
		return nil, err
	}

	s.entries.Set(catalogKey, channels, s.ttl)
	s.log.Debug("catalog refreshed", "channels", len(channels))

	return channels, nil
}

// parse walks the "items" array of the catalog response. Entries missing a
// playback URL are skipped rather than failing the whole catalog.
func (s *Service) parse(data []byte) ([]types.Channel, error) {
	var channels []types.Channel

	_, err := jsonparser.ArrayEach(data, func(item []byte, dataType jsonparser.ValueType, offset int, _ error) {
		playURL, err := jsonparser.GetString(item, "url")
		if err != nil || playURL == "" {
			return
		}

		id, _ := jsonparser.GetString(item, "id")
		name, _ := jsonparser.GetString(item, "name")
		group, _ := jsonparser.GetString(item, "group")
		logo, _ := jsonparser.GetString(item, "logo")
		if group == "" {
			group = "Other"
		}

		channels = append(channels, types.Channel{
			ID:       id,
			Name:     name,
			Group:    group,
			Logo:     logo,
			URL:      playURL,
			RelayURL: playlist.RelayURL(playURL, s.baseURL, types.ModeCDN),
		})
	}, "items")
	if err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}

	return channels, nil
}

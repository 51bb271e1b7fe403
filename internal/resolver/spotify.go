package resolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

var (
	spotifyTrackRegex    = regexp.MustCompile(`spotify\.com/track/([a-zA-Z0-9]+)`)
	spotifyPlaylistRegex = regexp.MustCompile(`spotify\.com/playlist/([a-zA-Z0-9]+)`)
)

// IsSpotifyURL reports whether urlStr points at open.spotify.com.
func IsSpotifyURL(urlStr string) bool { return strings.Contains(urlStr, "spotify.com/") }

// ParseSpotifyURL extracts the resource kind (track/playlist) and id.
func ParseSpotifyURL(urlStr string) (kind, id string, err error) {
	if m := spotifyTrackRegex.FindStringSubmatch(urlStr); len(m) > 1 {
		return "track", m[1], nil
	}
	if m := spotifyPlaylistRegex.FindStringSubmatch(urlStr); len(m) > 1 {
		return "playlist", m[1], nil
	}
	return "", "", apperrors.NewTypedError(apperrors.ErrUnsupportedURL, apperrors.CategoryMedia, "unrecognized Spotify URL", nil)
}

// spotifyTrack is the subset of Spotify's track object the resolver needs.
type spotifyTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	DurationMs  int `json:"duration_ms"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
}

func (t *spotifyTrack) artistName() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// searchQuery is the default "<artist> - <title>" bridge query.
func (t *spotifyTrack) searchQuery() string {
	if a := t.artistName(); a != "" {
		return fmt.Sprintf("%s - %s", a, t.Name)
	}
	return t.Name
}

// detailedSearchQuery adds the album and "official audio" to narrow
// down the best match when the plain query is ambiguous.
func (t *spotifyTrack) detailedSearchQuery() string {
	if a := t.artistName(); a != "" {
		return fmt.Sprintf("%s - %s %s official audio", a, t.Name, t.Album.Name)
	}
	return t.Name
}

type spotifyPlaylistTracksResponse struct {
	Items []struct {
		Track spotifyTrack `json:"track"`
	} `json:"items"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// spotifyClient is a minimal client-credentials Spotify Web API client:
// token cached with a 5-minute safety margin before Spotify's reported
// expiry, refreshed lazily, with a single retry-after-refresh on 401.
type spotifyClient struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func newSpotifyClient(clientID, clientSecret string, log *logger.Logger) *spotifyClient {
	return &spotifyClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       log,
	}
}

func (c *spotifyClient) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	return c.refreshLocked(ctx)
}

func (c *spotifyClient) refreshLocked(ctx context.Context) error {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://accounts.spotify.com/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTypedError(apperrors.ErrConnectionFailed, apperrors.CategoryNetwork, "spotify auth request failed", map[string]any{"error": err.Error()})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewTypedError(apperrors.ErrAuthFailed, apperrors.CategoryNetwork, "spotify auth rejected", map[string]any{"status": resp.StatusCode})
	}

	var tok spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryNetwork, "malformed spotify token response", nil)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 5*time.Minute)
	c.logger.Debug("spotify access token refreshed")
	return nil
}

func (c *spotifyClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.doGet(ctx, endpoint)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryNetwork, "spotify API error", map[string]any{"status": status})
	}
	return body, nil
}

func (c *spotifyClient) doGet(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperrors.NewTypedError(apperrors.ErrConnectionFailed, apperrors.CategoryNetwork, "spotify API request failed", map[string]any{"error": err.Error()})
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

const spotifyPageSize = 50
const spotifyTrackCap = 100

// fetchTrack retrieves a single track's details.
func (c *spotifyClient) fetchTrack(ctx context.Context, trackID string) (*spotifyTrack, error) {
	body, err := c.get(ctx, fmt.Sprintf("https://api.spotify.com/v1/tracks/%s", trackID))
	if err != nil {
		return nil, err
	}
	var t spotifyTrack
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryNetwork, "malformed spotify track", nil)
	}
	return &t, nil
}

// fetchPlaylistTracks pages through a playlist (50/page), stopping at
// spotifyTrackCap tracks. Returns (tracks, droppedCount), where dropped
// is computed against the playlist's own reported total rather than
// how many pages were actually fetched, so a playlist larger than the
// cap is reported accurately even though paging stops early.
func (c *spotifyClient) fetchPlaylistTracks(ctx context.Context, playlistID string) ([]spotifyTrack, int, error) {
	endpoint := fmt.Sprintf("https://api.spotify.com/v1/playlists/%s/tracks?limit=%d", playlistID, spotifyPageSize)

	var all []spotifyTrack
	total := 0
	for endpoint != "" {
		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, 0, err
		}
		var page spotifyPlaylistTracksResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, 0, apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryNetwork, "malformed spotify playlist page", nil)
		}
		total = page.Total
		for _, item := range page.Items {
			all = append(all, item.Track)
		}
		endpoint = page.Next
		if len(all) >= spotifyTrackCap {
			break
		}
	}

	if len(all) > spotifyTrackCap {
		all = all[:spotifyTrackCap]
	}
	dropped := total - len(all)
	if dropped < 0 {
		dropped = 0
	}
	return all, dropped, nil
}

package youtube

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"github.com/ifuryst/reelcast/internal/config"
	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/pkg/fsutil"
)

// RefreshTokenEnv is read when no cached token file exists.
const RefreshTokenEnv = "YOUTUBE_REFRESH_TOKEN"

// Scopes requested for listing, scheduling and uploading videos.
var Scopes = []string{
	youtube.YoutubeScope,
	youtube.YoutubeForceSslScope,
	youtube.YoutubeUploadScope,
}

// OAuthConfig reads the installed-app client secret downloaded from the
// Google Cloud console.
func OAuthConfig(clientSecretFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read client secret %s: %v", models.ErrConfiguration, clientSecretFile, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse client secret %s: %v", models.ErrConfiguration, clientSecretFile, err)
	}
	return cfg, nil
}

// NewHTTPClient builds an authorised client from the cached token, falling
// back to a refresh token in the environment. Refreshed tokens are written
// back to the cache file.
func NewHTTPClient(ctx context.Context, cfg config.YouTubeConfig, logger *zap.Logger) (*http.Client, error) {
	oauthCfg, err := OAuthConfig(cfg.ClientSecretFile)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(cfg.TokenCacheFile)
	if err != nil {
		refresh := os.Getenv(RefreshTokenEnv)
		if refresh == "" {
			return nil, fmt.Errorf("%w: no cached token at %s and %s is not set, run `reelcast auth` first",
				models.ErrConfiguration, cfg.TokenCacheFile, RefreshTokenEnv)
		}
		logger.Info("Using refresh token from environment")
		tok = &oauth2.Token{RefreshToken: refresh, Expiry: time.Now().Add(-time.Hour)}
	}

	src := &cachingTokenSource{
		base:   oauthCfg.TokenSource(ctx, tok),
		path:   cfg.TokenCacheFile,
		last:   tok,
		logger: logger,
	}
	return oauth2.NewClient(ctx, src), nil
}

// AuthorizeFromWeb prints the consent URL, reads the authorisation code from
// in and exchanges it for a token.
func AuthorizeFromWeb(ctx context.Context, oauthCfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code:\n%s\n", authURL)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", models.ErrInvalidInput)
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// LoadToken reads a JSON token cache file.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token cache %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok to path readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, b); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

type cachingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *cachingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken != tok.AccessToken {
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("Failed to cache refreshed token", zap.String("path", s.path), zap.Error(err))
		}
		s.last = tok
	}
	return tok, nil
}

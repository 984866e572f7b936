// Package store persists per-server OAuth state under a per-user root:
// tokens, dynamically registered client information and the PKCE code
// verifier live in sibling directories, one file per server. Reads are
// forgiving (absent or malformed files read as absent); writes are strict and
// atomic (tmp upload + move). Directories are created 0700, files 0600.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/viant/afs"
	"golang.org/x/oauth2"
)

// Scope selects which credential files an invalidation removes.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeClient   Scope = "client"
	ScopeTokens   Scope = "tokens"
	ScopeVerifier Scope = "verifier"
)

const (
	tokensDir    = "tokens"
	clientsDir   = "clients"
	verifiersDir = "verifiers"

	dirMode  = os.FileMode(0o700)
	fileMode = os.FileMode(0o600)
)

// ClientInfo is a dynamically registered OAuth client. RedirectURIs records
// what the client was registered against; a mismatch with the provider's
// current redirect URL invalidates the record.
type ClientInfo struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// Tokens is the persisted token set for one server.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// OAuth2 converts the persisted shape to an oauth2 token.
func (t *Tokens) OAuth2() *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// Service is the file-backed credential store.
type Service struct {
	root string
	fs   afs.Service
}

// New creates a store rooted at the given directory.
func New(root string) *Service {
	return &Service{root: root, fs: afs.New()}
}

// Root returns the store's base directory.
func (s *Service) Root() string {
	return s.root
}

var unsafeCharacters = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize derives a file-system safe name from a server name.
func Sanitize(server string) string {
	return unsafeCharacters.ReplaceAllString(server, "_")
}

func (s *Service) tokensPath(server string) string {
	return filepath.Join(s.root, tokensDir, Sanitize(server)+".json")
}

func (s *Service) clientPath(server string) string {
	return filepath.Join(s.root, clientsDir, Sanitize(server)+".json")
}

func (s *Service) verifierPath(server string) string {
	return filepath.Join(s.root, verifiersDir, Sanitize(server)+".txt")
}

// Tokens loads the persisted token set; absent or unreadable files yield nil.
func (s *Service) Tokens(ctx context.Context, server string) *Tokens {
	data, err := s.fs.DownloadWithURL(ctx, s.tokensPath(server))
	if err != nil {
		return nil
	}
	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil || tokens.AccessToken == "" {
		return nil
	}
	return &tokens
}

// SaveTokens persists an oauth2 token set for the server.
func (s *Service) SaveTokens(ctx context.Context, server string, token *oauth2.Token) error {
	tokens := &Tokens{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	return s.write(ctx, s.tokensPath(server), tokens)
}

// Client loads registered client information; absent reads as nil.
func (s *Service) Client(ctx context.Context, server string) *ClientInfo {
	data, err := s.fs.DownloadWithURL(ctx, s.clientPath(server))
	if err != nil {
		return nil
	}
	var info ClientInfo
	if err := json.Unmarshal(data, &info); err != nil || info.ClientID == "" {
		return nil
	}
	return &info
}

// SaveClient persists registered client information.
func (s *Service) SaveClient(ctx context.Context, server string, info *ClientInfo) error {
	return s.write(ctx, s.clientPath(server), info)
}

// Verifier loads the PKCE code verifier; absent reads as "".
func (s *Service) Verifier(ctx context.Context, server string) string {
	data, err := s.fs.DownloadWithURL(ctx, s.verifierPath(server))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveVerifier persists the PKCE code verifier.
func (s *Service) SaveVerifier(ctx context.Context, server, verifier string) error {
	return s.writeRaw(ctx, s.verifierPath(server), []byte(verifier))
}

// Invalidate deletes the credential files selected by scope, leaving other
// scopes untouched.
func (s *Service) Invalidate(ctx context.Context, server string, scope Scope) error {
	var paths []string
	switch scope {
	case ScopeClient:
		paths = []string{s.clientPath(server)}
	case ScopeTokens:
		paths = []string{s.tokensPath(server)}
	case ScopeVerifier:
		paths = []string{s.verifierPath(server)}
	default:
		paths = []string{s.tokensPath(server), s.clientPath(server), s.verifierPath(server)}
	}
	var firstErr error
	for _, path := range paths {
		if ok, _ := s.fs.Exists(ctx, path); !ok {
			continue
		}
		if err := s.fs.Delete(ctx, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) write(ctx context.Context, path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return s.writeRaw(ctx, path, data)
}

// writeRaw uploads through a sibling tmp file and renames into place so a
// concurrent reader never observes a torn file.
func (s *Service) writeRaw(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.Create(ctx, dir, dirMode, true); err != nil && !isExists(err) {
		return err
	}
	tmp := path + ".tmp"
	if err := s.fs.Upload(ctx, tmp, fileMode, strings.NewReader(string(data))); err != nil {
		return err
	}
	return s.fs.Move(ctx, tmp, path)
}

func isExists(err error) bool {
	return err != nil && (os.IsExist(err) || strings.Contains(err.Error(), "exists"))
}

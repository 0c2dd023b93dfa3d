package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/server"
)

// Resource URIs.
const (
	SessionURI       = "inboxdigest://session"
	DigestsURI       = "inboxdigest://digests"
	DigestURIPrefix  = DigestsURI + "/"
	digestURIPattern = DigestURIPrefix + "{date}"
)

// RegisterResources registers the session and digest resources
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sessionResource := mcp.NewResource(
		SessionURI,
		"Current Session",
		mcp.WithResourceDescription("The signed-in user and the token expiry, read from local state"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(sessionResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSession(ctx, request, sc)
	})

	digestsResource := mcp.NewResource(
		DigestsURI,
		"Saved Daily Digests",
		mcp.WithResourceDescription("Every saved daily digest, newest first"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(digestsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleDigests(ctx, request, sc)
	})

	digestTemplate := mcp.NewResourceTemplate(
		digestURIPattern,
		"Daily Digest",
		mcp.WithTemplateDescription("The saved daily digest of a date (YYYY-MM-DD)"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.AddResourceTemplate(digestTemplate, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleDigest(ctx, request, sc)
	})

	return nil
}

type sessionData struct {
	LoggedIn  bool   `json:"loggedIn"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func handleSession(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	guard := sc.Session()
	data := sessionData{LoggedIn: guard.LoggedIn(ctx)}

	user, err := guard.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if user != nil {
		data.UserID = user.ID
		data.Email = user.Email
	}
	if claims, err := guard.Claims(ctx); err == nil && !claims.ExpiresAt.IsZero() {
		data.ExpiresAt = cache.FormatTime(claims.ExpiresAt)
	}

	return jsonContents(request.Params.URI, data)
}

func handleDigests(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	digests, err := sc.Digests().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily digests: %w", err)
	}
	return jsonContents(request.Params.URI, digests)
}

func handleDigest(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	date := strings.TrimPrefix(request.Params.URI, DigestURIPrefix)
	if err := cache.ValidateDate(date); err != nil {
		return nil, err
	}

	d, err := sc.Digests().Get(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily digest: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("no daily digest saved for %s", date)
	}
	return jsonContents(request.Params.URI, d)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

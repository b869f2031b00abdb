// Package graph implements the collaboration directory on top of the
// Microsoft Graph v1.0 REST API using app-only credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/example/hearing-scheduler/internal/directory"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	defaultScope     = "https://graph.microsoft.com/.default"
	defaultTemplate  = "standard"
	defaultChannel   = "General"
	graphTimeLayout  = "2006-01-02T15:04:05.0000000Z"
	maxResponseBytes = 4 << 20
)

// APIError is a non-success response that has no more specific mapping.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("graph: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Options configures a Client.
type Options struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// TokenURL defaults to the tenant's v2.0 token endpoint.
	TokenURL string
	// HTTPClient carries requests to both the token endpoint and Graph.
	// Defaults to a pooled cleanhttp client.
	HTTPClient *http.Client
}

// Client talks to Graph. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client that authenticates with the client-credentials grant.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("graph: client id and secret are required")
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		if opts.TenantID == "" {
			return nil, errors.New("graph: tenant id is required")
		}
		tokenURL = "https://login.microsoftonline.com/" + url.PathEscape(opts.TenantID) + "/oauth2/v2.0/token"
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	transport := opts.HTTPClient
	if transport == nil {
		transport = cleanhttp.DefaultPooledClient()
	}

	cfg := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{defaultScope},
	}
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, transport)
	client := cfg.Client(tokenCtx)
	client.Timeout = 30 * time.Second

	return &Client{baseURL: strings.TrimRight(base, "/"), http: client}, nil
}

type response struct {
	status int
	header http.Header
	body   gjson.Result
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("graph: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, fmt.Errorf("graph: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, fmt.Errorf("graph: read %s %s: %w", method, path, err)
	}
	out := response{status: resp.StatusCode, header: resp.Header, body: gjson.ParseBytes(raw)}

	if resp.StatusCode == http.StatusNotFound {
		return out, directory.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &APIError{
			Status:  resp.StatusCode,
			Code:    out.body.Get("error.code").String(),
			Message: out.body.Get("error.message").String(),
		}
	}
	return out, nil
}

// list follows @odata.nextLink until every page has been read.
func (c *Client) list(ctx context.Context, path string) ([]gjson.Result, error) {
	var items []gjson.Result
	next := path
	for next != "" {
		resp, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.body.Get("value").Array()...)
		next = resp.body.Map()["@odata.nextLink"].String()
	}
	return items, nil
}

func (c *Client) userBind(userID string) string {
	return c.baseURL + "/users('" + userID + "')"
}

func (c *Client) appBind(appID string) string {
	return c.baseURL + "/appCatalogs/teamsApps/" + url.PathEscape(appID)
}

func teamPath(teamID string) string {
	return "/teams/" + url.PathEscape(teamID)
}

func channelPath(teamID, channelID string) string {
	return teamPath(teamID) + "/channels/" + url.PathEscape(channelID)
}

// CreateTeam starts team creation. The returned operation id is the
// Location header of the accepted response.
func (c *Client) CreateTeam(ctx context.Context, spec directory.TeamSpec) (string, error) {
	template := spec.Template
	if template == "" {
		template = defaultTemplate
	}
	payload := map[string]any{
		"template@odata.bind": c.baseURL + "/teamsTemplates('" + template + "')",
		"displayName":         spec.DisplayName,
		"description":         spec.Description,
	}
	if spec.Visibility != "" {
		payload["visibility"] = spec.Visibility
	}
	resp, err := c.do(ctx, http.MethodPost, "/teams", payload)
	if err != nil {
		return "", err
	}
	location := resp.header.Get("Location")
	if location == "" {
		return "", errors.New("graph: team creation accepted without an operation location")
	}
	if !strings.HasPrefix(location, "/") && !strings.HasPrefix(location, "http") {
		location = "/" + location
	}
	return location, nil
}

// GetTeamOperation reads the status of an asynchronous team operation.
func (c *Client) GetTeamOperation(ctx context.Context, operationID string) (directory.TeamOperation, error) {
	resp, err := c.do(ctx, http.MethodGet, operationID, nil)
	if err != nil {
		return directory.TeamOperation{}, err
	}
	return directory.TeamOperation{
		ID:     resp.body.Get("id").String(),
		Status: directory.OperationStatus(resp.body.Get("status").String()),
		TeamID: resp.body.Get("targetResourceId").String(),
		Error:  resp.body.Get("error.message").String(),
	}, nil
}

// RenameTeam changes the team display name.
func (c *Client) RenameTeam(ctx context.Context, teamID, name string) error {
	_, err := c.do(ctx, http.MethodPatch, teamPath(teamID), map[string]any{"displayName": name})
	return err
}

// ListTeamMembers lists every membership in the team.
func (c *Client) ListTeamMembers(ctx context.Context, teamID string) ([]directory.Member, error) {
	items, err := c.list(ctx, teamPath(teamID)+"/members")
	if err != nil {
		return nil, err
	}
	return parseMembers(items), nil
}

// AddTeamMembers adds users in one members/add round trip.
func (c *Client) AddTeamMembers(ctx context.Context, teamID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return c.bulkAdd(ctx, teamPath(teamID)+"/members/add", userIDs)
}

// RemoveTeamMember removes a team membership.
func (c *Client) RemoveTeamMember(ctx context.Context, teamID, membershipID string) error {
	_, err := c.do(ctx, http.MethodDelete, teamPath(teamID)+"/members/"+url.PathEscape(membershipID), nil)
	return err
}

// ListChannels lists the team's channels.
func (c *Client) ListChannels(ctx context.Context, teamID string) ([]directory.Channel, error) {
	items, err := c.list(ctx, teamPath(teamID)+"/channels")
	if err != nil {
		return nil, err
	}
	channels := make([]directory.Channel, 0, len(items))
	for _, item := range items {
		channels = append(channels, parseChannel(item))
	}
	return channels, nil
}

// CreateChannel creates a channel in the team.
func (c *Client) CreateChannel(ctx context.Context, teamID string, spec directory.ChannelSpec) (directory.Channel, error) {
	membership := spec.MembershipType
	if membership == "" {
		membership = directory.MembershipStandard
	}
	resp, err := c.do(ctx, http.MethodPost, teamPath(teamID)+"/channels", map[string]any{
		"displayName":    spec.Name,
		"description":    spec.Description,
		"membershipType": string(membership),
	})
	if err != nil {
		return directory.Channel{}, err
	}
	return parseChannel(resp.body), nil
}

// ListChannelMembers lists every membership in the channel.
func (c *Client) ListChannelMembers(ctx context.Context, teamID, channelID string) ([]directory.Member, error) {
	items, err := c.list(ctx, channelPath(teamID, channelID)+"/members")
	if err != nil {
		return nil, err
	}
	return parseMembers(items), nil
}

// AddChannelMembers adds users to a channel in one round trip.
func (c *Client) AddChannelMembers(ctx context.Context, teamID, channelID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return c.bulkAdd(ctx, channelPath(teamID, channelID)+"/members/add", userIDs)
}

// RemoveChannelMember removes a channel membership.
func (c *Client) RemoveChannelMember(ctx context.Context, teamID, channelID, membershipID string) error {
	_, err := c.do(ctx, http.MethodDelete, channelPath(teamID, channelID)+"/members/"+url.PathEscape(membershipID), nil)
	return err
}

// InstallApp installs a catalog app into the team and returns the
// installation id. An app that is already installed is not an error.
func (c *Client) InstallApp(ctx context.Context, teamID, appID string) (string, error) {
	_, err := c.do(ctx, http.MethodPost, teamPath(teamID)+"/installedApps", map[string]any{
		"teamsApp@odata.bind": c.appBind(appID),
	})
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
		return "", err
	}

	query := url.Values{}
	query.Set("$expand", "teamsApp")
	query.Set("$filter", "teamsApp/id eq '"+appID+"'")
	resp, err := c.do(ctx, http.MethodGet, teamPath(teamID)+"/installedApps?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	id := resp.body.Get("value.0.id").String()
	if id == "" {
		return "", fmt.Errorf("graph: app %s not listed after installation", appID)
	}
	return id, nil
}

// CreateChannelTab pins an installed app to a channel. Channels that are
// still provisioning answer with directory.ErrNotReady.
func (c *Client) CreateChannelTab(ctx context.Context, teamID, channelID string, spec directory.TabSpec) (directory.Tab, error) {
	resp, err := c.do(ctx, http.MethodPost, channelPath(teamID, channelID)+"/tabs", map[string]any{
		"displayName":         spec.Name,
		"teamsApp@odata.bind": c.appBind(spec.AppID),
		"configuration": map[string]any{
			"entityId":   spec.EntityID,
			"contentUrl": spec.ContentURL,
			"websiteUrl": spec.WebsiteURL,
		},
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusPreconditionFailed) {
			return directory.Tab{}, fmt.Errorf("%w: %s", directory.ErrNotReady, apiErr.Message)
		}
		return directory.Tab{}, err
	}
	return directory.Tab{
		ID:   resp.body.Get("id").String(),
		Name: resp.body.Get("displayName").String(),
	}, nil
}

// CreateOrGetMeeting creates the organizer's meeting for the external id or
// returns the existing one.
func (c *Client) CreateOrGetMeeting(ctx context.Context, req directory.MeetingRequest) (directory.Meeting, error) {
	resp, err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(req.OrganizerID)+"/onlineMeetings/createOrGet", map[string]any{
		"externalId":    req.ExternalID,
		"subject":       req.Subject,
		"startDateTime": req.Start.UTC().Format(graphTimeLayout),
		"endDateTime":   req.End.UTC().Format(graphTimeLayout),
	})
	if err != nil {
		return directory.Meeting{}, err
	}
	meeting := directory.Meeting{
		ID:       resp.body.Get("id").String(),
		ThreadID: resp.body.Get("chatInfo.threadId").String(),
		JoinURL:  resp.body.Get("joinWebUrl").String(),
	}
	meeting.Start, _ = time.Parse(time.RFC3339Nano, resp.body.Get("startDateTime").String())
	meeting.End, _ = time.Parse(time.RFC3339Nano, resp.body.Get("endDateTime").String())
	return meeting, nil
}

// UpdateMeeting moves a meeting to new times.
func (c *Client) UpdateMeeting(ctx context.Context, organizerID, meetingID string, start, end time.Time) error {
	_, err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(organizerID)+"/onlineMeetings/"+url.PathEscape(meetingID), map[string]any{
		"startDateTime": start.UTC().Format(graphTimeLayout),
		"endDateTime":   end.UTC().Format(graphTimeLayout),
	})
	return err
}

// DeleteMeeting deletes a meeting. A meeting that is already gone counts as deleted.
func (c *Client) DeleteMeeting(ctx context.Context, organizerID, meetingID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(organizerID)+"/onlineMeetings/"+url.PathEscape(meetingID), nil)
	if errors.Is(err, directory.ErrNotFound) {
		return nil
	}
	return err
}

// CreateChatMessage posts an HTML message into a chat thread.
func (c *Client) CreateChatMessage(ctx context.Context, threadID, content string) error {
	_, err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(threadID)+"/messages", map[string]any{
		"body": map[string]any{"contentType": "html", "content": content},
	})
	return err
}

func (c *Client) bulkAdd(ctx context.Context, path string, userIDs []string) error {
	values := make([]map[string]any, 0, len(userIDs))
	for _, id := range userIDs {
		values = append(values, map[string]any{
			"@odata.type":     "microsoft.graph.aadUserConversationMember",
			"roles":           []string{},
			"user@odata.bind": c.userBind(id),
		})
	}
	resp, err := c.do(ctx, http.MethodPost, path, map[string]any{"values": values})
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, item := range resp.body.Get("value").Array() {
		if msg := item.Get("error.message").String(); msg != "" {
			result = multierror.Append(result, fmt.Errorf("graph: add %s: %s", item.Get("userId").String(), msg))
		}
	}
	return result.ErrorOrNil()
}

func parseMembers(items []gjson.Result) []directory.Member {
	members := make([]directory.Member, 0, len(items))
	for _, item := range items {
		members = append(members, directory.Member{
			MembershipID: item.Get("id").String(),
			UserID:       item.Get("userId").String(),
			Email:        item.Get("email").String(),
			DisplayName:  item.Get("displayName").String(),
		})
	}
	return members
}

func parseChannel(item gjson.Result) directory.Channel {
	name := item.Get("displayName").String()
	membership := directory.MembershipType(item.Get("membershipType").String())
	if membership == "" {
		membership = directory.MembershipStandard
	}
	return directory.Channel{
		ID:             item.Get("id").String(),
		Name:           name,
		MembershipType: membership,
		IsDefault:      strings.EqualFold(name, defaultChannel),
	}
}

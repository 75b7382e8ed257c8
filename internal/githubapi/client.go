// Package githubapi implements a narrow GitHub adapter directly on
// net/http + encoding/json. No repository in the retrieved example pack
// imports a Go GitHub REST client (pm shells out to the gh CLI instead);
// this mirrors the request/response shapes of the original orchestrator's
// lib/github_client.py, which used aiohttp against the same endpoints.
package githubapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
)

const baseURL = "https://api.github.com"

// Client talks to the GitHub REST API for issue discovery, label
// reconciliation, and comments.
type Client struct {
	Token      string
	HTTPClient *http.Client
	BaseURL    string
}

// New returns a Client authenticated with token.
func New(token string) *Client {
	return &Client{Token: token, HTTPClient: http.DefaultClient, BaseURL: baseURL}
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return baseURL
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return c.HTTPClient.Do(req)
}

// rawIssue is one issue as returned by the GitHub REST API's issues listing.
type rawIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// ListReadyIssuesLabel is the fixed discovery label. Older deployments
// used "ready-for-claude"; that alias must NOT be silently accepted.
const ListReadyIssuesLabel = "agent-ready"

// ListReadyIssues returns open issues in repo carrying the discovery
// label, annotated with repoName.
func (c *Client) ListReadyIssues(repo string) ([]RepoIssue, error) {
	u := fmt.Sprintf("%s/repos/%s/issues?labels=%s&state=open", c.base(), repo, url.QueryEscape(ListReadyIssuesLabel))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &imploiderr.GitHubError{Status: resp.StatusCode, Body: readBody(resp)}
	}

	var raw []rawIssue
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}

	out := make([]RepoIssue, 0, len(raw))
	for _, ri := range raw {
		out = append(out, RepoIssue{Number: ri.Number, Title: ri.Title, RepoName: repo})
	}
	return out, nil
}

// RepoIssue is a discovered issue annotated with its source repository.
type RepoIssue struct {
	Number   int
	Title    string
	RepoName string
}

// LabelUpdate describes the labels to add and remove from an issue.
type LabelUpdate struct {
	Add    []string
	Remove []string
}

// UpdateLabels reads the issue's current labels, applies removals then
// additions (set-union/difference), and PUTs the resulting set. Safe to
// re-invoke with the same arguments.
func (c *Client) UpdateLabels(repo string, issueNumber int, upd LabelUpdate) error {
	issueURL := fmt.Sprintf("%s/repos/%s/issues/%d", c.base(), repo, issueNumber)

	req, err := http.NewRequest(http.MethodGet, issueURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("get issue: %w", err)
	}
	var issue rawIssue
	decodeErr := json.NewDecoder(resp.Body).Decode(&issue)
	status := resp.StatusCode
	resp.Body.Close()
	if status != http.StatusOK {
		return &imploiderr.GitHubError{Status: status, Body: fmt.Sprintf("get issue %d", issueNumber)}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode issue: %w", decodeErr)
	}

	current := make(map[string]bool, len(issue.Labels))
	for _, l := range issue.Labels {
		current[l.Name] = true
	}
	for _, r := range upd.Remove {
		delete(current, r)
	}
	for _, a := range upd.Add {
		current[a] = true
	}

	final := make([]string, 0, len(current))
	for name := range current {
		final = append(final, name)
	}

	body, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	putReq, err := http.NewRequest(http.MethodPut, issueURL+"/labels", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	putReq.Header.Set("Content-Type", "application/json")
	putResp, err := c.do(putReq)
	if err != nil {
		return fmt.Errorf("put labels: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode != http.StatusOK && putResp.StatusCode != http.StatusCreated {
		return &imploiderr.GitHubError{Status: putResp.StatusCode, Body: readBody(putResp)}
	}
	return nil
}

// CreateComment posts body as a new comment on the issue.
func (c *Client) CreateComment(repo string, issueNumber int, body string) error {
	u := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.base(), repo, issueNumber)
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &imploiderr.GitHubError{Status: resp.StatusCode, Body: readBody(resp)}
	}
	return nil
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

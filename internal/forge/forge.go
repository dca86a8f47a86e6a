// Package forge is a typed wrapper over the external code-forge HTTP API
// (issues, PRs, comments, labels, reviewers, merges, collaborators), ported
// from original_source/engine/operations/github_api_helper.py's
// GitHubAPIHelper, generalized to whatever forge API SPEC_FULL.md's
// ForgeConfig.BaseURL points at. Comments, label changes, reviewer
// requests, draft conversion, merges and issue creation are checked against
// C1 first, and all of them except RequestReviewers are recorded with it
// afterwards; SetAssignees, MarkPRReady, Invite and AcceptInvitation are
// neither checked nor recorded. Every response's rate-limit headers feed
// back into C1, as _update_rate_limit_from_response does.
package forge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/swebotic/coordfab/internal/errs"
	"github.com/swebotic/coordfab/internal/model"
)

// Limiter is the subset of *ratelimit.Limiter the client needs.
type Limiter interface {
	Check(opType model.OperationType, repo, content string) error
	Record(opType model.OperationType, repo, content string) error
	ObservePlatformLimits(remaining int, resetAt time.Time)
}

// Doer is satisfied by *http.Client; swappable in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a thin, rate-limit-gated HTTP+JSON client over the forge API.
type Client struct {
	baseURL    string
	token      string
	apiVersion string
	http       Doer
	limiter    Limiter
	readTimeout time.Duration
}

// New builds a Client. doer may be nil to use a new http.Client with a 30s
// timeout.
func New(baseURL, token, apiVersion string, limiter Limiter, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, apiVersion: apiVersion, http: doer, limiter: limiter, readTimeout: 30 * time.Second}
}

// Label, Issue, PullRequest, PRFile are the wire shapes this client decodes.
type Label struct {
	Name string `json:"name"`
}

type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []Label   `json:"labels"`
	Assignees []User    `json:"assignees"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

type User struct {
	Login string `json:"login"`
}

type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	User      User      `json:"user"`
	Draft     bool      `json:"draft"`
	Labels    []Label   `json:"labels"`
	Mergeable *bool     `json:"mergeable"`
	CreatedAt time.Time `json:"created_at"`
	Base      struct {
		SHA string `json:"sha"`
	} `json:"base"`
	Head struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

type PRFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch"`
}

// ListIssuesFilter mirrors list_issues's optional query params.
type ListIssuesFilter struct {
	Assignee string
	State    string // defaults to "open"
	Labels   []string
}

// ListIssues lists a repo's issues, filtering out pull-request entries the
// same way the original comment notes GitHub's /issues endpoint returns
// PRs too ("filters out PR entries" per SPEC_FULL.md §4.2). Reads are not
// gated by the rate limiter -- only side-effecting operations are, matching
// check_rate_limit()'s scope in the original.
func (c *Client) ListIssues(ctx context.Context, repo string, filter ListIssuesFilter) ([]Issue, error) {
	state := filter.State
	if state == "" {
		state = "open"
	}
	path := fmt.Sprintf("/repos/%s/issues?state=%s&per_page=100", repo, state)
	if filter.Assignee != "" {
		path += "&assignee=" + filter.Assignee
	}
	for _, l := range filter.Labels {
		path += "&labels=" + l
	}

	var raw []Issue
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(raw))
	for _, it := range raw {
		if it.PullRequest == nil {
			out = append(out, it)
		}
	}
	return out, nil
}

// GetIssue fetches one issue by number.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (Issue, error) {
	var out Issue
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues/%d", repo, number), nil, &out)
	return out, err
}

// CommentIssue posts a fingerprinted comment to an issue, gated by C1.
func (c *Client) CommentIssue(ctx context.Context, repo string, number int, body string) error {
	return c.postComment(ctx, fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number), repo, body)
}

// AddComment is an alias of CommentIssue used for both issues and PRs --
// the forge's comment endpoint is shared between them, and SPEC_FULL.md
// §9's closing Open Question resolution requires every operator-visible
// comment to be fingerprinted here, not at each call site.
func (c *Client) AddComment(ctx context.Context, repo string, number int, body string) error {
	return c.CommentIssue(ctx, repo, number, body)
}

func (c *Client) postComment(ctx context.Context, path, repo, body string) error {
	if err := c.limiter.Check(model.OpComment, repo, body); err != nil {
		return err
	}
	err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"body": body}, nil)
	c.recordMutation(model.OpComment, repo, body, err)
	return err
}

// GetPR fetches a pull request.
func (c *Client) GetPR(ctx context.Context, repo string, number int) (PullRequest, error) {
	var out PullRequest
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/pulls/%d", repo, number), nil, &out)
	return out, err
}

// ListPRFiles lists the files changed by a pull request.
func (c *Client) ListPRFiles(ctx context.Context, repo string, number int) ([]PRFile, error) {
	var out []PRFile
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", repo, number), nil, &out)
	return out, err
}

// AddLabels adds labels to an issue or PR (the forge treats PRs as issues
// for labeling purposes).
func (c *Client) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	fingerprint := fmt.Sprintf("%v", labels)
	if err := c.limiter.Check(model.OpLabelChange, repo, fingerprint); err != nil {
		return err
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues/%d/labels", repo, number), map[string][]string{"labels": labels}, nil)
	c.recordMutation(model.OpLabelChange, repo, fingerprint, err)
	return err
}

// RemoveLabel removes a single label from an issue or PR.
func (c *Client) RemoveLabel(ctx context.Context, repo string, number int, label string) error {
	if err := c.limiter.Check(model.OpLabelChange, repo, label); err != nil {
		return err
	}
	err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/issues/%d/labels/%s", repo, number, label), nil, nil)
	c.recordMutation(model.OpLabelChange, repo, label, err)
	return err
}

// RequestReviewers assigns reviewers to a PR. Fails gracefully (returns a
// nil error but false) when the forge rejects it -- e.g. reviewer equals
// author -- per SPEC_FULL.md §4.13 step 4.
func (c *Client) RequestReviewers(ctx context.Context, repo string, number int, reviewers []string) (bool, error) {
	if err := c.limiter.Check(model.OpLabelChange, repo, fmt.Sprintf("reviewers:%v", reviewers)); err != nil {
		return false, err
	}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls/%d/requested_reviewers", repo, number), map[string][]string{"reviewers": reviewers}, nil)
	if err != nil {
		if _, ok := err.(*errs.PlatformError); ok {
			return false, nil // graceful failure, e.g. reviewer == author
		}
		return false, err
	}
	return true, nil
}

// SetAssignees replaces a PR/issue's assignee list.
func (c *Client) SetAssignees(ctx context.Context, repo string, number int, assignees []string) error {
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues/%d/assignees", repo, number), map[string][]string{"assignees": assignees}, nil)
	return err
}

// ConvertPRToDraft flips a PR to draft status, via the forge's GraphQL
// mutation in the real API; modeled here as a single typed call.
func (c *Client) ConvertPRToDraft(ctx context.Context, repo string, number int, reason string) error {
	if err := c.limiter.Check(model.OpLabelChange, repo, "draft:"+reason); err != nil {
		return err
	}
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/pulls/%d/convert-to-draft", repo, number), map[string]string{"reason": reason}, nil)
	c.recordMutation(model.OpLabelChange, repo, "draft:"+reason, err)
	return err
}

// MarkPRReady flips a PR from draft back to ready-for-review.
func (c *Client) MarkPRReady(ctx context.Context, repo string, number int) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/pulls/%d/ready-for-review", repo, number), nil, nil)
}

// MergeMethod enumerates the three merge strategies SPEC_FULL.md §4.2 names.
type MergeMethod string

const (
	MergeMerge  MergeMethod = "merge"
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
)

// MergeOptions carries the optional commit title/message for merge_pr.
type MergeOptions struct {
	Method        MergeMethod
	CommitTitle   string
	CommitMessage string
}

// MergePR merges a pull request, gated by C1 since it is the system's one
// irreversible mutation (SPEC_FULL.md §5: "merge is the last irreversible
// step").
func (c *Client) MergePR(ctx context.Context, repo string, number int, opts MergeOptions) error {
	fingerprint := fmt.Sprintf("merge:%d:%s", number, opts.Method)
	if err := c.limiter.Check(model.OpPRMerge, repo, fingerprint); err != nil {
		return err
	}
	body := map[string]string{"merge_method": string(opts.Method)}
	if opts.CommitTitle != "" {
		body["commit_title"] = opts.CommitTitle
	}
	if opts.CommitMessage != "" {
		body["commit_message"] = opts.CommitMessage
	}
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/pulls/%d/merge", repo, number), body, nil)
	c.recordMutation(model.OpPRMerge, repo, fingerprint, err)
	return err
}

// CreateIssueRequest is create_issue's payload.
type CreateIssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// CreateIssue opens a new issue (used by the coordinator gateway when
// complex issues are decomposed into sub-issues).
func (c *Client) CreateIssue(ctx context.Context, repo string, req CreateIssueRequest) (Issue, error) {
	fingerprint := req.Title + "\n" + req.Body
	if err := c.limiter.Check(model.OpPRCreate, repo, fingerprint); err != nil {
		return Issue{}, err
	}
	var out Issue
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues", repo), req, &out)
	c.recordMutation(model.OpPRCreate, repo, fingerprint, err)
	return out, err
}

// Invite adds a collaborator invitation to repo for user with the given
// permission level.
func (c *Client) Invite(ctx context.Context, repo, user, permission string) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/collaborators/%s", repo, user), map[string]string{"permission": permission}, nil)
}

// Invitation is one pending repository invitation for a user.
type Invitation struct {
	ID   int64  `json:"id"`
	Repo string `json:"repository"`
}

// ListInvitations lists pending invitations for the authenticated user.
func (c *Client) ListInvitations(ctx context.Context) ([]Invitation, error) {
	var out []Invitation
	err := c.doJSON(ctx, http.MethodGet, "/user/repository_invitations", nil, &out)
	return out, err
}

// AcceptInvitation accepts a pending collaborator invitation by ID.
func (c *Client) AcceptInvitation(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/user/repository_invitations/%d", id), nil, nil)
}

// CheckAccess reports whether user has any collaborator permission on repo.
func (c *Client) CheckAccess(ctx context.Context, repo, user string) (bool, error) {
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/collaborators/%s", repo, user), nil, nil)
	if err == nil {
		return true, nil
	}
	if pe, ok := err.(*errs.PlatformError); ok && pe.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (c *Client) recordMutation(opType model.OperationType, repo, content string, err error) {
	if recErr := c.limiter.Record(opType, repo, content); recErr != nil {
		_ = recErr // best-effort bookkeeping; the mutation itself already happened
	}
	_ = err
}

// doJSON performs one HTTP round trip with JSON request/response bodies,
// feeding rate-limit response headers back into the limiter exactly as
// _update_rate_limit_from_response does, regardless of read or write.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respOut any) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return &errs.ValidationError{Field: "body", Reason: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &errs.ValidationError{Field: "request", Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.forge+json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("X-Forge-Api-Version", c.apiVersion)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.PlatformError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	c.observeHeaders(resp.Header)

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &errs.AuthError{Op: method + " " + path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &errs.PlatformError{StatusCode: resp.StatusCode, Op: method + " " + path, Err: fmt.Errorf("%s", body)}
	}
	if resp.StatusCode >= 400 {
		return &errs.PlatformError{StatusCode: resp.StatusCode, Op: method + " " + path, Err: fmt.Errorf("%s", body)}
	}

	if respOut != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respOut); err != nil {
			return &errs.ValidationError{Field: "response", Reason: err.Error()}
		}
	}
	return nil
}

// observeHeaders feeds X-RateLimit-Remaining/Reset into the limiter. A
// malformed or absent header is ignored, matching §4.1's "best-effort
// telemetry" failure semantics.
func (c *Client) observeHeaders(h http.Header) {
	remaining, err1 := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	resetUnix, err2 := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	c.limiter.ObservePlatformLimits(remaining, time.Unix(resetUnix, 0))
}

// Fingerprint exposes the same content-hash the rate limiter uses, for
// callers (e.g. CoordinatorGateway) that want to check duplication before
// composing an expensive comment body.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:16]
}

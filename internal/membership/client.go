// Package membership resolves an email address to the set of
// subscription tiers the external service says it is entitled to.
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tiergate/tiergate/internal/metrics"
)

const (
	// DefaultBaseURL is the production subscription API root.
	DefaultBaseURL = "https://www.patreon.com/api/oauth2/v2"
	// PageCount is the page size requested from the members collection.
	PageCount = 100

	clientTimeout         = 20 * time.Second
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
)

// Eligible patron statuses. Anything else is treated as inactive.
var eligibleStatuses = map[string]bool{
	"active_patron": true,
	"former_patron": true,
}

// campaignState tracks the lazy campaign-ID lookup. The lookup runs at
// most once; a failure is permanent for the process lifetime.
type campaignState int

const (
	campaignUnresolved campaignState = iota
	campaignResolved
	campaignFailed
)

// Resolver queries the subscription API for a member's entitled tiers.
type Resolver struct {
	client  *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
	metrics metrics.Recorder

	mu            sync.Mutex
	campaignID    string
	campaignState campaignState
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(base string) Option {
	return func(r *Resolver) { r.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. campaignID may be empty, in which
// case it is looked up lazily on first use.
func NewResolver(token, campaignID string, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client:  newHTTPClient(),
		baseURL: DefaultBaseURL,
		token:   token,
		logger:  logger,
		metrics: metrics.NewNoop(),
	}
	if campaignID != "" {
		r.campaignID = campaignID
		r.campaignState = campaignResolved
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// JSON:API shapes for the members collection.

type membersPage struct {
	Data     []memberResource `json:"data"`
	Included []tierResource   `json:"included"`
	Meta     struct {
		Pagination struct {
			Cursors struct {
				Next string `json:"next"`
			} `json:"cursors"`
		} `json:"pagination"`
	} `json:"meta"`
}

type memberResource struct {
	Attributes struct {
		Email        string `json:"email"`
		FullName     string `json:"full_name"`
		PatronStatus string `json:"patron_status"`
	} `json:"attributes"`
	Relationships struct {
		CurrentlyEntitledTiers struct {
			Data []resourceRef `json:"data"`
		} `json:"currently_entitled_tiers"`
	} `json:"relationships"`
}

type tierResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		Title       string `json:"title"`
		AmountCents int    `json:"amount_cents"`
	} `json:"attributes"`
}

type resourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type campaignsPage struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ResolveTiers pages through the campaign's members and returns the
// entitled tier titles for the member whose email matches, case
// insensitively. It walks every page before declaring the email absent.
func (r *Resolver) ResolveTiers(ctx context.Context, email string) ([]string, error) {
	start := time.Now()
	tiers, err := r.resolveTiers(ctx, email)
	r.metrics.ObserveResolveDuration(time.Since(start))
	return tiers, err
}

func (r *Resolver) resolveTiers(ctx context.Context, email string) ([]string, error) {
	if r.token == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrNotConfigured)
	}
	campaignID, err := r.ensureCampaignID(ctx)
	if err != nil {
		return nil, err
	}

	var (
		members  []memberResource
		included []tierResource
		cursor   string
		pages    int
	)
	for {
		page, err := r.fetchMembersPage(ctx, campaignID, cursor)
		if err != nil {
			return nil, err
		}
		pages++
		members = append(members, page.Data...)
		included = append(included, page.Included...)

		cursor = page.Meta.Pagination.Cursors.Next
		if cursor == "" {
			break
		}
	}
	r.logger.Debug("fetched members",
		slog.Int("pages", pages),
		slog.Int("members", len(members)))

	for _, m := range members {
		if !strings.EqualFold(m.Attributes.Email, email) {
			continue
		}
		if !eligibleStatuses[m.Attributes.PatronStatus] {
			return nil, &InactiveError{Status: m.Attributes.PatronStatus}
		}
		tiers := tierTitles(m, included)
		if len(tiers) == 0 {
			return nil, ErrNoTiers
		}
		return tiers, nil
	}
	return nil, ErrNotFound
}

// tierTitles maps a member's entitled tier refs to titles via the
// side-loaded tier resources, dropping empty titles and duplicates.
func tierTitles(m memberResource, included []tierResource) []string {
	byID := make(map[string]string, len(included))
	for _, t := range included {
		if t.Type == "tier" {
			byID[t.ID] = t.Attributes.Title
		}
	}

	var tiers []string
	seen := make(map[string]bool)
	for _, ref := range m.Relationships.CurrentlyEntitledTiers.Data {
		title := byID[ref.ID]
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		tiers = append(tiers, title)
	}
	return tiers
}

func (r *Resolver) fetchMembersPage(ctx context.Context, campaignID, cursor string) (*membersPage, error) {
	q := url.Values{}
	q.Set("include", "currently_entitled_tiers")
	q.Set("fields[member]", "full_name,email,patron_status")
	q.Set("fields[tier]", "title,amount_cents")
	q.Set("page[count]", fmt.Sprintf("%d", PageCount))
	if cursor != "" {
		q.Set("page[cursor]", cursor)
	}

	endpoint := fmt.Sprintf("%s/campaigns/%s/members?%s", r.baseURL, campaignID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build members request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch members page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrBadCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var page membersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode members page: %w", err)
	}
	return &page, nil
}

// ensureCampaignID returns the campaign ID, looking it up at most once
// per process lifetime. After a failed lookup every subsequent call
// short-circuits with ErrNotConfigured instead of retrying.
func (r *Resolver) ensureCampaignID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.campaignState {
	case campaignResolved:
		return r.campaignID, nil
	case campaignFailed:
		return "", fmt.Errorf("%w: campaign ID could not be determined", ErrNotConfigured)
	}

	// Single attempt, success or not.
	r.campaignState = campaignFailed

	id, err := r.fetchCampaignID(ctx)
	if err != nil {
		r.logger.Error("campaign ID lookup failed", slog.Any("error", err))
		return "", err
	}

	r.campaignID = id
	r.campaignState = campaignResolved
	r.logger.Info("campaign ID resolved", slog.String("campaign_id", id))
	return id, nil
}

func (r *Resolver) fetchCampaignID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/campaigns", nil)
	if err != nil {
		return "", fmt.Errorf("build campaigns request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch campaigns: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrBadCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode}
	}

	var page campaignsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return "", fmt.Errorf("decode campaigns: %w", err)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("%w: token owns no campaigns", ErrNotConfigured)
	}
	return page.Data[0].ID, nil
}

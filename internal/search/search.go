// Package search queries a people-search provider for hunt candidates.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the provider is not configured or failed.
var ErrUnavailable = errors.New("people search unavailable")

// DefaultURL is the Apollo mixed people search endpoint.
const DefaultURL = "https://api.apollo.io/v1/mixed_people/search"

// Criteria is the normalized search query built from campaign targeting.
type Criteria struct {
	Titles     []string
	Industries []string
	Locations  []string
	SizeRange  string
	Keywords   []string
}

// Candidate is a person returned by the provider, already flattened into
// fixed fields. Missing values are empty strings.
type Candidate struct {
	ExternalID  string
	Name        string
	Title       string
	Company     string
	Industry    string
	CompanySize string
	Email       string
	LinkedInURL string
	Location    string
}

// Client is the PeopleSearchClient contract consumed by the hunt stage.
type Client interface {
	Search(ctx context.Context, criteria Criteria, pageSize int) ([]Candidate, error)
}

// Apollo calls the Apollo people search API.
type Apollo struct {
	apiKey string
	url    string
	http   *http.Client
	log    *zap.Logger
}

// NewApollo builds a client that retries 429 and 5xx responses with
// exponential backoff. An empty apiKey yields a client whose every call
// returns ErrUnavailable.
func NewApollo(apiKey, url string, log *zap.Logger) *Apollo {
	if url == "" {
		url = DefaultURL
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second
	return &Apollo{apiKey: apiKey, url: url, http: rc.StandardClient(), log: log}
}

type apolloRequest struct {
	APIKey                 string   `json:"api_key"`
	PersonTitles           []string `json:"person_titles"`
	OrganizationLocations  []string `json:"organization_locations"`
	OrganizationIndustries []string `json:"organization_industry_tag_ids"`
	OrganizationSizeRanges []string `json:"organization_num_employees_ranges"`
	PersonSeniorities      []string `json:"person_seniorities"`
	Keywords               string   `json:"keywords,omitempty"`
	PerPage                int      `json:"per_page"`
	Page                   int      `json:"page"`
}

type apolloOrganization struct {
	Name          string `json:"name"`
	Industry      string `json:"industry"`
	EmployeeCount any    `json:"employee_count"`
}

type apolloPerson struct {
	ID               string              `json:"id"`
	FirstName        string              `json:"first_name"`
	LastName         string              `json:"last_name"`
	Name             string              `json:"name"`
	Title            string              `json:"title"`
	Email            string              `json:"email"`
	Emails           []string            `json:"emails"`
	LinkedInURL      string              `json:"linkedin_url"`
	Location         string              `json:"location"`
	Organization     *apolloOrganization `json:"organization"`
	OrganizationName string              `json:"organization_name"`
	Industry         string              `json:"industry"`
	EmployeeCount    any                 `json:"employee_count"`
}

type apolloResponse struct {
	People  []apolloPerson `json:"people"`
	Matches []apolloPerson `json:"matches"`
}

func (a *Apollo) Search(ctx context.Context, criteria Criteria, pageSize int) ([]Candidate, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("%w: APOLLO_API_KEY not set", ErrUnavailable)
	}

	reqBody := apolloRequest{
		APIKey:                 a.apiKey,
		PersonTitles:           nonNil(criteria.Titles),
		OrganizationLocations:  nonNil(criteria.Locations),
		OrganizationIndustries: nonNil(criteria.Industries),
		OrganizationSizeRanges: []string{criteria.SizeRange},
		PersonSeniorities:      []string{"director", "vp", "c_suite"},
		PerPage:                pageSize,
		Page:                   1,
	}
	if len(criteria.Keywords) > 0 {
		reqBody.Keywords = strings.Join(criteria.Keywords, ", ")
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out apolloResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	people := out.People
	if len(people) == 0 {
		people = out.Matches
	}

	candidates := make([]Candidate, 0, len(people))
	for _, p := range people {
		candidates = append(candidates, p.candidate())
	}
	a.log.Debug("people search completed", zap.Int("candidates", len(candidates)), zap.Int("page_size", pageSize))
	return candidates, nil
}

// candidate flattens the provider's varying shapes into fixed fields.
func (p apolloPerson) candidate() Candidate {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	}
	email := ""
	for _, e := range p.Emails {
		if e = strings.TrimSpace(e); e != "" {
			email = e
			break
		}
	}
	if email == "" {
		email = strings.TrimSpace(p.Email)
	}

	company, industry, size := p.OrganizationName, p.Industry, sizeString(p.EmployeeCount)
	if p.Organization != nil {
		if p.Organization.Name != "" {
			company = p.Organization.Name
		}
		if p.Organization.Industry != "" {
			industry = p.Organization.Industry
		}
		if s := sizeString(p.Organization.EmployeeCount); s != "" {
			size = s
		}
	}

	return Candidate{
		ExternalID:  p.ID,
		Name:        name,
		Title:       strings.TrimSpace(p.Title),
		Company:     strings.TrimSpace(company),
		Industry:    strings.TrimSpace(industry),
		CompanySize: size,
		Email:       strings.ToLower(email),
		LinkedInURL: strings.TrimSpace(p.LinkedInURL),
		Location:    strings.TrimSpace(p.Location),
	}
}

// sizeString accepts employee counts sent as either numbers or strings.
func sizeString(v any) string {
	switch n := v.(type) {
	case string:
		return strings.TrimSpace(n)
	case float64:
		return fmt.Sprintf("%d", int64(n))
	}
	return ""
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

var _ Client = (*Apollo)(nil)

package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// maxBodyBytes caps resolver responses; Crossref records can be large
const maxBodyBytes = 2 << 20

// Resolution is a resolver's answer for one DOI
type Resolution struct {
	Found bool
	Title string
	Year  int
}

// Resolver confirms that a DOI is registered. A nil error with Found=false
// is a definitive "not registered"; an error means the resolver could not answer.
type Resolver interface {
	Name() string
	Endpoint(doi string) string
	Resolve(ctx context.Context, doi string) (Resolution, error)
}

// HandleResolver queries the doi.org handle API
type HandleResolver struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewHandleResolver creates a resolver for a handles endpoint such as https://doi.org/api/handles/
func NewHandleResolver(baseURL string, client *http.Client, userAgent string) *HandleResolver {
	return &HandleResolver{baseURL: withSlash(baseURL), client: client, userAgent: userAgent}
}

// Name returns the resolver name
func (r *HandleResolver) Name() string { return "doi.org" }

// Endpoint returns the lookup URL for doi
func (r *HandleResolver) Endpoint(doi string) string { return r.baseURL + doi }

type handleResponse struct {
	ResponseCode int    `json:"responseCode"`
	Handle       string `json:"handle"`
}

// Resolve looks the DOI up in the handle system
func (r *HandleResolver) Resolve(ctx context.Context, doi string) (Resolution, error) {
	body, status, err := get(ctx, r.client, r.Endpoint(doi), r.userAgent)
	if err != nil {
		return Resolution{}, err
	}
	if status == http.StatusNotFound {
		return Resolution{Found: false}, nil
	}
	if status != http.StatusOK {
		return Resolution{}, fmt.Errorf("handle API returned HTTP %d", status)
	}

	var resp handleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Resolution{}, fmt.Errorf("decode handle response: %w", err)
	}
	// 1 = success, 100 = handle not found, 200 = no values
	return Resolution{Found: resp.ResponseCode == 1}, nil
}

// CrossrefResolver queries the Crossref works API
type CrossrefResolver struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewCrossrefResolver creates a resolver for a works endpoint such as https://api.crossref.org/works/
func NewCrossrefResolver(baseURL string, client *http.Client, userAgent string) *CrossrefResolver {
	return &CrossrefResolver{baseURL: withSlash(baseURL), client: client, userAgent: userAgent}
}

// Name returns the resolver name
func (r *CrossrefResolver) Name() string { return "crossref" }

// Endpoint returns the lookup URL for doi
func (r *CrossrefResolver) Endpoint(doi string) string { return r.baseURL + doi }

type crossrefResponse struct {
	Status  string `json:"status"`
	Message struct {
		Title          []string  `json:"title"`
		Issued         dateParts `json:"issued"`
		PublishedPrint dateParts `json:"published-print"`
	} `json:"message"`
}

type dateParts struct {
	Parts [][]int `json:"date-parts"`
}

func (d dateParts) year() int {
	if len(d.Parts) > 0 && len(d.Parts[0]) > 0 {
		return d.Parts[0][0]
	}
	return 0
}

// Resolve fetches the work record and extracts its title and year
func (r *CrossrefResolver) Resolve(ctx context.Context, doi string) (Resolution, error) {
	body, status, err := get(ctx, r.client, r.Endpoint(doi), r.userAgent)
	if err != nil {
		return Resolution{}, err
	}
	if status == http.StatusNotFound {
		return Resolution{Found: false}, nil
	}
	if status != http.StatusOK {
		return Resolution{}, fmt.Errorf("crossref returned HTTP %d", status)
	}

	var resp crossrefResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Resolution{}, fmt.Errorf("decode crossref response: %w", err)
	}
	if resp.Status != "ok" {
		return Resolution{Found: false}, nil
	}

	res := Resolution{Found: true}
	if len(resp.Message.Title) > 0 {
		res.Title = StripMarkup(resp.Message.Title[0])
	}
	res.Year = resp.Message.Issued.year()
	if res.Year == 0 {
		res.Year = resp.Message.PublishedPrint.year()
	}
	return res, nil
}

// StripMarkup removes JATS/HTML tags (e.g. <i>, <sub>) and collapses whitespace
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func get(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/resilience"
)

const (
	defaultBaseURL = "https://api.hubapi.com"

	// DefaultDealStage is the entry stage of HubSpot's default sales pipeline.
	DefaultDealStage = "qualifiedtobuy"
	// DefaultPipeline is the id of HubSpot's default sales pipeline.
	DefaultPipeline = "default"

	// HubSpot-defined association type ids.
	assocDealToContact = 3
	assocDealToCompany = 5
)

// Client creates CRM objects in HubSpot.
type Client interface {
	CreateCompany(ctx context.Context, in CompanyInput) (string, error)
	CreateContact(ctx context.Context, in ContactInput) (string, error)
	CreateDeal(ctx context.Context, in DealInput) (string, error)
	TestConnection(ctx context.Context) bool
}

// CompanyInput holds company fields. Empty strings are sent as blanks.
type CompanyInput struct {
	Name     string
	Industry string
	Size     string
	Website  string
}

// ContactInput holds contact fields. Name is split into first and last name.
type ContactInput struct {
	Name        string
	Email       string
	Title       string
	Phone       string
	CompanyName string
}

// DealInput holds deal fields plus optional association targets.
type DealInput struct {
	Name      string
	Value     *float64
	CloseDate string
	Stage     string
	ContactID string
	CompanyID string
}

// APIError is a non-2xx response from HubSpot. Body is kept verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit paces requests to rps per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithDefaultStage sets the deal stage used when none was extracted.
func WithDefaultStage(stage string) Option {
	return func(c *httpClient) {
		if stage != "" {
			c.defaultStage = stage
		}
	}
}

// WithPipeline sets the deal pipeline id.
func WithPipeline(pipeline string) Option {
	return func(c *httpClient) {
		if pipeline != "" {
			c.pipeline = pipeline
		}
	}
}

// WithBreaker rejects create calls while b is open. A nil breaker is a
// no-op.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	token        string
	baseURL      string
	defaultStage string
	pipeline     string
	http         *http.Client
	limiter      *rate.Limiter
	breaker      *resilience.Breaker
}

// NewClient creates a HubSpot client authenticated with a private-app
// access token. A missing token is a configuration error.
func NewClient(token string, opts ...Option) (Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Configuration("hubspot: access token is required (CRM_HUBSPOT_TOKEN)")
	}
	c := &httpClient{
		token:        token,
		baseURL:      defaultBaseURL,
		defaultStage: DefaultDealStage,
		pipeline:     DefaultPipeline,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type objectInput struct {
	Properties   map[string]string `json:"properties"`
	Associations []association     `json:"associations,omitempty"`
}

type association struct {
	To    associationTarget `json:"to"`
	Types []associationType `json:"types"`
}

type associationTarget struct {
	ID string `json:"id"`
}

type associationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

type objectResult struct {
	ID string `json:"id"`
}

func (c *httpClient) CreateCompany(ctx context.Context, in CompanyInput) (string, error) {
	body := objectInput{
		Properties: map[string]string{
			"name":              in.Name,
			"industry":          in.Industry,
			"numberofemployees": in.Size,
			"website":           in.Website,
		},
	}
	return c.create(ctx, "companies", body)
}

func (c *httpClient) CreateContact(ctx context.Context, in ContactInput) (string, error) {
	first, last := SplitName(in.Name)
	body := objectInput{
		Properties: map[string]string{
			"email":     in.Email,
			"firstname": first,
			"lastname":  last,
			"jobtitle":  in.Title,
			"phone":     in.Phone,
			"company":   in.CompanyName,
		},
	}
	return c.create(ctx, "contacts", body)
}

func (c *httpClient) CreateDeal(ctx context.Context, in DealInput) (string, error) {
	stage := c.defaultStage
	if strings.TrimSpace(in.Stage) != "" {
		stage = StageID(in.Stage)
	}

	amount := ""
	if in.Value != nil && *in.Value != 0 {
		amount = strconv.FormatFloat(*in.Value, 'f', -1, 64)
	}

	body := objectInput{
		Properties: map[string]string{
			"dealname":  in.Name,
			"amount":    amount,
			"closedate": in.CloseDate,
			"dealstage": stage,
			"pipeline":  c.pipeline,
		},
	}
	if in.ContactID != "" {
		body.Associations = append(body.Associations, newAssociation(in.ContactID, assocDealToContact))
	}
	if in.CompanyID != "" {
		body.Associations = append(body.Associations, newAssociation(in.CompanyID, assocDealToCompany))
	}
	return c.create(ctx, "deals", body)
}

func (c *httpClient) TestConnection(ctx context.Context) bool {
	if _, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?limit=1", nil); err != nil {
		zap.L().Warn("hubspot: connection test failed", zap.Error(err))
		return false
	}
	return true
}

func newAssociation(id string, typeID int) association {
	return association{
		To:    associationTarget{ID: id},
		Types: []associationType{{Category: "HUBSPOT_DEFINED", TypeID: typeID}},
	}
}

func (c *httpClient) create(ctx context.Context, objectType string, body objectInput) (string, error) {
	respBody, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodPost, "/crm/v3/objects/"+objectType, body)
	})
	if err != nil {
		return "", err
	}

	var result objectResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrapf(err, "hubspot: unmarshal %s response", objectType)
	}
	if result.ID == "" {
		return "", eris.Errorf("hubspot: %s response missing id", objectType)
	}
	return result.ID, nil
}

// do issues one authenticated request. Transport failures and non-2xx
// responses are external-API errors; the latter wrap *APIError.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "hubspot: rate limit")
		}
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "hubspot: marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.External(eris.Wrap(err, "hubspot: send request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: read response")
	}

	zap.L().Debug("hubspot: request complete",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.External(&APIError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}
	return respBody, nil
}

// SplitName splits a full name into first name (first whitespace-delimited
// token) and last name (the remainder). Either may be empty.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	idx := strings.IndexFunc(name, unicode.IsSpace)
	if idx < 0 {
		return name, ""
	}
	return name[:idx], strings.TrimSpace(name[idx:])
}

package cfddns

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

	"github.com/google/go-querystring/query"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
)

// NewCloudflareProvider constructs a Provider for one Cloudflare zone, authenticated with an API token.
// baseURL is normally DefaultCloudflareURL.
func NewCloudflareProvider(token, zoneID, baseURL string) (*CloudflareProvider, error) {
	if token == "" {
		return nil, errors.New("cloudflare API token cannot be empty")
	}
	if zoneID == "" {
		return nil, errors.New("cloudflare zone ID cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("error parsing cloudflare API URL: %w", err)
	}
	return &CloudflareProvider{
		token:   token,
		zoneID:  zoneID,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  discard,
	}, nil
}

// CloudflareProvider implements cfddns.Provider against the Cloudflare v4 REST API.
type CloudflareProvider struct {
	httpClient *http.Client
	logger     *logrus.Logger
	token      string
	zoneID     string
	baseURL    string
}

func (cf *CloudflareProvider) SetHTTPClient(c *http.Client) { cf.httpClient = c }
func (cf *CloudflareProvider) SetLogger(l *logrus.Logger)   { cf.logger = l }

type listRecordsQuery struct {
	Type string `url:"type"`
}

type listRecordsResponse struct {
	Result []cloudflareRecord `json:"result" validate:"required,dive"`
}

type cloudflareRecord struct {
	ID      *string `json:"id" validate:"required"`
	Name    *string `json:"name" validate:"required"`
	Content *string `json:"content" validate:"required"`
	TTL     *int    `json:"ttl" validate:"required,gte=0"`
	Proxied *bool   `json:"proxied" validate:"required"`
}

// ListRecords returns every A record in the zone, in the order the API returned them.
func (cf *CloudflareProvider) ListRecords(ctx context.Context) ([]DNSRecord, error) {
	q, err := query.Values(listRecordsQuery{Type: recordTypeA})
	if err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}
	u := fmt.Sprintf("%s/zones/%s/dns_records/?%s", cf.baseURL, cf.zoneID, q.Encode())
	cf.logger.Debugf("listing A records: GET %s", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	cf.setHeaders(req)

	resp, err := cf.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("error retrieving DNS records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: "list DNS records", StatusCode: resp.StatusCode, Status: resp.Status, Body: readBody(resp.Body)}
	}

	var body listRecordsResponse
	if err := decodeJSON(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("list DNS records: %w", err)
	}

	records := make([]DNSRecord, len(body.Result))
	for i, r := range body.Result {
		records[i] = DNSRecord{
			ID:      *r.ID,
			Name:    *r.Name,
			Content: *r.Content,
			TTL:     *r.TTL,
			Proxied: *r.Proxied,
		}
	}
	cf.logger.Debugf("found %d A records in zone %s", len(records), cf.zoneID)
	return records, nil
}

// UpdateRecord patches a single record.
// Any status other than 200 OK is returned as a *StatusError carrying the response body.
func (cf *CloudflareProvider) UpdateRecord(ctx context.Context, recordID string, update RecordUpdate) error {
	if recordID == "" {
		return errors.New("record ID cannot be empty")
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("error encoding record update: %w", err)
	}
	u := fmt.Sprintf("%s/zones/%s/dns_records/%s", cf.baseURL, cf.zoneID, url.PathEscape(recordID))
	cf.logger.Debugf("updating record: PATCH %s %s", u, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	cf.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := cf.client().Do(req)
	if err != nil {
		return fmt.Errorf("error updating DNS record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "update DNS record", StatusCode: resp.StatusCode, Status: resp.Status, Body: readBody(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (cf *CloudflareProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Accept", "application/json")
}

func (cf *CloudflareProvider) client() *http.Client {
	if cf.httpClient == nil {
		return cleanhttp.DefaultClient()
	}
	return cf.httpClient
}

// StatusError reports an HTTP response with an unexpected status code.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string // status line, e.g. "400 Bad Request"
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http request returned %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: http request returned %s: %s", e.Op, e.Status, e.Body)
}

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 64 << 10

func readBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil && len(b) == 0 {
		return fmt.Sprintf("<error reading body: %s>", err)
	}
	return string(b)
}

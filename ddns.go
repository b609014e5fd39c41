package cfddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
)

// New builds a client for the zone and subdomains in cfg.
//
// Unless replaced with UsingResolver or UsingProvider,
// the public IP comes from cfg.IPServiceURL and records are managed through the Cloudflare API at cfg.APIURL.
// All HTTP traffic of a run shares one pooled client, see UsingHTTPClient.
func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.Domain == "" {
		return nil, errors.New("cfddns.New: domain cannot be empty")
	}
	if len(cfg.Subdomains) == 0 {
		return nil, errors.New("cfddns.New: no subdomains to manage")
	}
	c := &Client{
		domain:     cfg.Domain,
		subdomains: cfg.Subdomains,
		logger:     discard,
		now:        time.Now,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("cfddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.resolver == nil {
		serviceURL := cfg.IPServiceURL
		if serviceURL == "" {
			serviceURL = DefaultIPServiceURL
		}
		r, err := WebResolver(serviceURL)
		if err != nil {
			return nil, fmt.Errorf("cfddns.New: error creating IP resolver: %w", err)
		}
		c.resolver = r
	}
	if c.provider == nil {
		apiURL := cfg.APIURL
		if apiURL == "" {
			apiURL = DefaultCloudflareURL
		}
		p, err := NewCloudflareProvider(cfg.APIToken, cfg.ZoneID, apiURL)
		if err != nil {
			return nil, fmt.Errorf("cfddns.New: error creating cloudflare DNS provider: %w", err)
		}
		c.provider = p
	}
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
	}

	// dependencies are registered in any order, so the shared logger and http client are handed out last
	type setLogger interface {
		SetLogger(*logrus.Logger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	for _, dep := range []any{c.resolver, c.provider, c.notifier} {
		if d, ok := dep.(setLogger); ok {
			d.SetLogger(c.logger)
		}
		if d, ok := dep.(setHTTPClient); ok {
			d.SetHTTPClient(c.httpClient)
		}
	}
	return c, nil
}

type Option func(*Client) error

func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		if resolver == nil {
			return errors.New("cfddns.UsingResolver: resolver cannot be nil")
		}
		c.resolver = resolver
		return nil
	}
}

func UsingProvider(provider Provider) Option {
	return func(c *Client) error {
		if provider == nil {
			return errors.New("cfddns.UsingProvider: provider cannot be nil")
		}
		c.provider = provider
		return nil
	}
}

// UsingHTTPClient sets the client shared by the default resolver and provider.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = cleanhttp.DefaultPooledClient()
		}
		c.httpClient = httpclient
		return nil
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		return nil
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) error {
		c.notifier = n
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// DryRun logs the records that would change without patching them.
func DryRun() Option {
	return func(c *Client) error {
		c.dryRun = true
		return nil
	}
}

type Client struct {
	resolver   Resolver
	provider   Provider
	notifier   Notifier
	metrics    *Metrics
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
	dryRun     bool

	domain     string
	subdomains []string
}

// Report summarizes the record loop of one run.
type Report struct {
	Checked   int
	Updated   int
	Unchanged int
	Missing   int
	Failed    int
	Pending   int // mismatches left alone because of DryRun

	// Failures holds one error per record that could not be updated.
	Failures []error
}

// Err joins the per-record failures, or returns nil if every update went through.
func (r Report) Err() error {
	return errors.Join(r.Failures...)
}

// RunDDNS resolves the public IP, lists the zone's A records and updates the configured ones that differ.
//
// A returned error means the run was aborted before any record was touched.
// Failed record updates do not abort the run; they are logged and collected in the Report.
func (c *Client) RunDDNS(ctx context.Context) (Report, error) {
	ip, err := c.resolver.Resolve(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("error getting public IP: %w", err)
	}
	currentIP := ip.String()
	c.logger.Infof("Current IP: %s", currentIP)

	records, err := c.provider.ListRecords(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("error listing DNS records: %w", err)
	}

	c.logger.Infof("Checking %d subdomains...", len(c.subdomains))
	var report Report
	for _, subdomain := range c.subdomains {
		c.reconcile(ctx, FQDN(subdomain, c.domain), currentIP, records, &report)
	}
	if c.metrics != nil {
		c.metrics.finished(c.now())
	}
	return report, nil
}

func (c *Client) reconcile(ctx context.Context, fqdn, currentIP string, records []DNSRecord, report *Report) {
	c.logger.Infof("Checking domain: %s", fqdn)
	report.Checked++
	c.count(func(m *Metrics) { m.RecordsChecked.Inc() })

	record, found := findRecord(records, fqdn)
	if !found {
		c.logger.Warnf("No A record found for %s", fqdn)
		report.Missing++
		c.count(func(m *Metrics) { m.RecordsMissing.Inc() })
		return
	}
	if record.Content == currentIP {
		c.logger.Infof("No IP change needed for %s", fqdn)
		report.Unchanged++
		return
	}

	c.logger.Infof("IP changed for %s: updating record...", fqdn)
	if c.dryRun {
		c.logger.Infof("Dry run: would update %s from %s to %s", fqdn, record.Content, currentIP)
		report.Pending++
		return
	}

	err := c.provider.UpdateRecord(ctx, record.ID, RecordUpdate{
		Type:    recordTypeA,
		Name:    fqdn,
		Content: currentIP,
		TTL:     record.TTL,
		Proxied: record.Proxied,
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			c.logger.Errorf("Update failed for %s (%s): %s", fqdn, se.Status, se.Body)
		} else {
			c.logger.Errorf("Update failed for %s: %s", fqdn, err)
		}
		report.Failed++
		report.Failures = append(report.Failures, fmt.Errorf("%s: %w", fqdn, err))
		c.count(func(m *Metrics) { m.UpdateFailures.Inc() })
		c.notify(fmt.Sprintf("Update failed for %s: %s", fqdn, err))
		return
	}

	c.logger.Infof("Successfully updated DNS record for %s to %s", fqdn, currentIP)
	report.Updated++
	c.count(func(m *Metrics) { m.RecordsUpdated.Inc() })
	c.notify(fmt.Sprintf("Updated %s from %s to %s", fqdn, record.Content, currentIP))
}

func (c *Client) count(f func(*Metrics)) {
	if c.metrics != nil {
		f(c.metrics)
	}
}

func (c *Client) notify(message string) {
	if c.notifier != nil {
		c.notifier.Notify(message)
	}
}

// FQDN returns the fully qualified name for a subdomain label of domain.
// The label "*" yields the wildcard name "*.domain".
func FQDN(label, domain string) string {
	if label == "*" {
		return "*." + domain
	}
	return label + "." + domain
}

// findRecord returns the first record named exactly name.
func findRecord(records []DNSRecord, name string) (DNSRecord, bool) {
	for _, r := range records {
		if r.Name == name {
			return r, true
		}
	}
	return DNSRecord{}, false
}

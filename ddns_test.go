package cfddns_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/Travis-Britz/cfddns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patch struct {
	id     string
	update cfddns.RecordUpdate
}

type fakeProvider struct {
	records   []cfddns.DNSRecord
	listErr   error
	updateErr map[string]error
	lists     int
	patches   []patch
}

func (p *fakeProvider) ListRecords(context.Context) ([]cfddns.DNSRecord, error) {
	p.lists++
	return p.records, p.listErr
}

func (p *fakeProvider) UpdateRecord(_ context.Context, id string, update cfddns.RecordUpdate) error {
	p.patches = append(p.patches, patch{id: id, update: update})
	return p.updateErr[id]
}

type fakeResolver struct {
	addr string
	err  error
}

func (r fakeResolver) Resolve(context.Context) (netip.Addr, error) {
	if r.err != nil {
		return netip.Addr{}, r.err
	}
	return netip.MustParseAddr(r.addr), nil
}

type fakeNotifier []string

func (n *fakeNotifier) Notify(message string) { *n = append(*n, message) }

func newTestClient(t *testing.T, subdomains []string, resolver cfddns.Resolver, provider cfddns.Provider, opts ...cfddns.Option) (*cfddns.Client, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	cfg := cfddns.Config{
		APIToken:   "token",
		ZoneID:     "zone-1",
		Domain:     "example.com",
		Subdomains: subdomains,
	}
	opts = append([]cfddns.Option{
		cfddns.WithLogger(logger),
		cfddns.UsingResolver(resolver),
		cfddns.UsingProvider(provider),
	}, opts...)
	c, err := cfddns.New(cfg, opts...)
	require.NoError(t, err)
	return c, hook
}

func entries(hook *test.Hook, level logrus.Level) (messages []string) {
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			messages = append(messages, e.Message)
		}
	}
	return messages
}

func TestFQDN(t *testing.T) {
	tests := []struct {
		label, domain, want string
	}{
		{"www", "example.com", "www.example.com"},
		{"*", "example.com", "*.example.com"},
		{"a.b", "example.com", "a.b.example.com"},
		{"WWW", "example.com", "WWW.example.com"},
		{"", "example.com", ".example.com"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, cfddns.FQDN(tc.label, tc.domain))
	}
}

func TestRunDDNSScenario(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "rec-www", Name: "www.example.com", Content: "1.2.3.3", TTL: 300, Proxied: false},
		{ID: "rec-wild", Name: "*.example.com", Content: "1.2.3.4", TTL: 300, Proxied: true},
	}}
	c, hook := newTestClient(t, []string{"www", "*"}, fakeResolver{addr: "1.2.3.4"}, provider)

	report, err := c.RunDDNS(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.patches, 1)
	assert.Equal(t, patch{id: "rec-www", update: cfddns.RecordUpdate{
		Type:    "A",
		Name:    "www.example.com",
		Content: "1.2.3.4",
		TTL:     300,
		Proxied: false,
	}}, provider.patches[0])

	assert.Equal(t, cfddns.Report{Checked: 2, Updated: 1, Unchanged: 1}, report)
	assert.NoError(t, report.Err())
	assert.Contains(t, entries(hook, logrus.InfoLevel), "Successfully updated DNS record for www.example.com to 1.2.3.4")
	assert.Contains(t, entries(hook, logrus.InfoLevel), "No IP change needed for *.example.com")
	assert.Empty(t, entries(hook, logrus.WarnLevel))
}

func TestRunDDNSPreservesTTLAndProxied(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "r1", Name: "home.example.com", Content: "10.0.0.1", TTL: 1, Proxied: true},
	}}
	c, _ := newTestClient(t, []string{"home"}, fakeResolver{addr: "10.0.0.2"}, provider)

	_, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	require.Len(t, provider.patches, 1)
	assert.Equal(t, 1, provider.patches[0].update.TTL)
	assert.True(t, provider.patches[0].update.Proxied)
	assert.Equal(t, "10.0.0.2", provider.patches[0].update.Content)
	assert.Equal(t, "home.example.com", provider.patches[0].update.Name)
}

func TestRunDDNSMissingRecord(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "rec-www", Name: "www.example.com", Content: "1.2.3.3", TTL: 300},
	}}
	c, hook := newTestClient(t, []string{"api"}, fakeResolver{addr: "1.2.3.4"}, provider)

	report, err := c.RunDDNS(context.Background())
	require.NoError(t, err)

	assert.Empty(t, provider.patches)
	assert.Equal(t, []string{"No A record found for api.example.com"}, entries(hook, logrus.WarnLevel))
	assert.Equal(t, cfddns.Report{Checked: 1, Missing: 1}, report)
}

func TestRunDDNSExactNameMatch(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "upper", Name: "WWW.example.com", Content: "1.1.1.1"},
		{ID: "dot", Name: "www.example.com.", Content: "1.1.1.1"},
	}}
	c, hook := newTestClient(t, []string{"www"}, fakeResolver{addr: "1.2.3.4"}, provider)

	_, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	assert.Empty(t, provider.patches)
	assert.Len(t, entries(hook, logrus.WarnLevel), 1)
}

func TestRunDDNSFirstMatchWins(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "first", Name: "www.example.com", Content: "1.1.1.1", TTL: 60},
		{ID: "second", Name: "www.example.com", Content: "2.2.2.2", TTL: 120},
	}}
	c, _ := newTestClient(t, []string{"www"}, fakeResolver{addr: "1.2.3.4"}, provider)

	_, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	require.Len(t, provider.patches, 1)
	assert.Equal(t, "first", provider.patches[0].id)
	assert.Equal(t, 60, provider.patches[0].update.TTL)
}

func TestRunDDNSDuplicateSubdomains(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "rec-www", Name: "www.example.com", Content: "1.1.1.1"},
	}}
	c, _ := newTestClient(t, []string{"www", "www"}, fakeResolver{addr: "1.2.3.4"}, provider)

	report, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	// the records are listed once, so the second entry still sees the old content
	assert.Len(t, provider.patches, 2)
	assert.Equal(t, 1, provider.lists)
	assert.Equal(t, 2, report.Checked)
}

func TestRunDDNSFailureDoesNotStopLoop(t *testing.T) {
	rejected := &cfddns.StatusError{Op: "update DNS record", StatusCode: 400, Status: "400 Bad Request", Body: `{"success":false}`}
	provider := &fakeProvider{
		records: []cfddns.DNSRecord{
			{ID: "a", Name: "a.example.com", Content: "1.1.1.1"},
			{ID: "b", Name: "b.example.com", Content: "1.1.1.1"},
			{ID: "c", Name: "c.example.com", Content: "1.1.1.1"},
		},
		updateErr: map[string]error{
			"a": rejected,
			"b": errors.New("connection reset by peer"),
		},
	}
	notifier := &fakeNotifier{}
	c, hook := newTestClient(t, []string{"a", "b", "c"}, fakeResolver{addr: "1.2.3.4"}, provider, cfddns.WithNotifier(notifier))

	report, err := c.RunDDNS(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.patches, 3)
	assert.Equal(t, "c", provider.patches[2].id)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Updated)
	assert.ErrorIs(t, report.Err(), rejected)

	errs := entries(hook, logrus.ErrorLevel)
	require.Len(t, errs, 2)
	assert.Equal(t, `Update failed for a.example.com (400 Bad Request): {"success":false}`, errs[0])
	assert.Contains(t, errs[1], "b.example.com")
	assert.Len(t, *notifier, 3)
}

func TestRunDDNSFatalErrors(t *testing.T) {
	t.Run("resolver", func(t *testing.T) {
		provider := &fakeProvider{}
		c, _ := newTestClient(t, []string{"www"}, fakeResolver{err: errors.New("no route to host")}, provider)
		_, err := c.RunDDNS(context.Background())
		assert.Error(t, err)
		assert.Zero(t, provider.lists, "records must not be listed without an IP")
		assert.Empty(t, provider.patches)
	})
	t.Run("list", func(t *testing.T) {
		provider := &fakeProvider{listErr: errors.New("forbidden")}
		c, _ := newTestClient(t, []string{"www"}, fakeResolver{addr: "1.2.3.4"}, provider)
		_, err := c.RunDDNS(context.Background())
		assert.Error(t, err)
		assert.Empty(t, provider.patches)
	})
}

func TestRunDDNSDryRun(t *testing.T) {
	provider := &fakeProvider{records: []cfddns.DNSRecord{
		{ID: "rec-www", Name: "www.example.com", Content: "1.2.3.3"},
	}}
	c, hook := newTestClient(t, []string{"www"}, fakeResolver{addr: "1.2.3.4"}, provider, cfddns.DryRun())

	report, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	assert.Empty(t, provider.patches)
	assert.Equal(t, 1, report.Pending)
	assert.Contains(t, entries(hook, logrus.InfoLevel), "Dry run: would update www.example.com from 1.2.3.3 to 1.2.3.4")
}

func TestRunDDNSMetrics(t *testing.T) {
	provider := &fakeProvider{
		records: []cfddns.DNSRecord{
			{ID: "a", Name: "a.example.com", Content: "1.1.1.1"},
			{ID: "b", Name: "b.example.com", Content: "1.2.3.4"},
			{ID: "c", Name: "c.example.com", Content: "1.1.1.1"},
		},
		updateErr: map[string]error{"c": errors.New("timeout")},
	}
	metrics := cfddns.NewMetrics()
	c, _ := newTestClient(t, []string{"a", "b", "c", "d"}, fakeResolver{addr: "1.2.3.4"}, provider, cfddns.WithMetrics(metrics))

	_, err := c.RunDDNS(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RecordsChecked))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsUpdated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsMissing))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpdateFailures))
	assert.NotZero(t, testutil.ToFloat64(metrics.LastRun))
}

func TestNewValidation(t *testing.T) {
	_, err := cfddns.New(cfddns.Config{Subdomains: []string{"www"}})
	assert.Error(t, err, "domain is required")

	_, err = cfddns.New(cfddns.Config{Domain: "example.com"})
	assert.Error(t, err, "subdomains are required")

	_, err = cfddns.New(cfddns.Config{Domain: "example.com", Subdomains: []string{"www"}})
	assert.Error(t, err, "the default provider needs a token and zone")

	_, err = cfddns.New(cfddns.Config{Domain: "example.com", Subdomains: []string{"www"}}, cfddns.UsingProvider(nil))
	assert.Error(t, err)
}

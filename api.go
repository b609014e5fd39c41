package cfddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the address the DNS records should point at.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// Provider reads and patches the A records of a single zone.
type Provider interface {
	ListRecords(ctx context.Context) ([]DNSRecord, error)
	UpdateRecord(ctx context.Context, recordID string, update RecordUpdate) error
}

// Notifier receives a message for each record that changed or failed to change.
type Notifier interface {
	Notify(message string)
}

// DNSRecord is an A record as returned by the provider.
type DNSRecord struct {
	ID      string
	Name    string
	Content string
	TTL     int
	Proxied bool
}

// RecordUpdate is the body sent to patch a record.
//
// TTL and Proxied are copied from the existing record so the patch only moves the address.
type RecordUpdate struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

const recordTypeA = "A"

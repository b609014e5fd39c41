package cfddns

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
)

// WebResolver constructs a resolver which asks an external web service for our public IP address.
//
// The service must speak http, return a 2xx status,
// and respond with a JSON object whose "ip" field holds the address,
// which is what https://api.ipify.org?format=json does.
// All other responses are considered an error.
// There is exactly one request per Resolve call and no retry.
func WebResolver(serviceURL string) (Resolver, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q for IP service URL", u.Scheme)
	}
	return &webResolver{serviceURL: u}, nil
}

type webResolver struct {
	httpClient *http.Client
	serviceURL *url.URL
}

type ipifyResponse struct {
	IP *string `json:"ip" validate:"required,ip"`
}

func (wr *webResolver) SetHTTPClient(c *http.Client) {
	wr.httpClient = c
}

// Resolve implements cfddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wr.serviceURL.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = cleanhttp.DefaultClient()
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, &StatusError{Op: "IP lookup", StatusCode: resp.StatusCode, Status: resp.Status, Body: readBody(resp.Body)}
	}

	var body ipifyResponse
	if err := decodeJSON(resp.Body, &body); err != nil {
		return netip.Addr{}, fmt.Errorf("IP lookup: %w", err)
	}
	ip, err := netip.ParseAddr(*body.IP)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}

package cfddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns addr.
// It replaces the public IP lookup when the address is already known.
func FromString(addr string) (Resolver, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	return stringResolver{addr: ip}, nil
}

type stringResolver struct {
	addr netip.Addr
}

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	return s.addr, nil
}

package outputs

import (
	"fmt"
	"net"
	"strings"

	"github.com/smazurov/outputnode/internal/handles"
)

// IP families a stream output may bind to.
const (
	IPFamilyAny  = "IPv4+IPv6"
	IPFamilyIPv4 = "IPv4"
	IPFamilyIPv6 = "IPv6"
)

// BindDefault lets the OS choose the local address.
const BindDefault = "default"

// NetworkSettings are the socket options of a stream output.
type NetworkSettings struct {
	BindIP         string `toml:"bind_ip" json:"bind_ip"`
	IPFamily       string `toml:"ip_family" json:"ip_family"`
	LowLatency     bool   `toml:"low_latency" json:"low_latency"`
	DynamicBitrate bool   `toml:"dynamic_bitrate" json:"dynamic_bitrate"`
}

// Validate checks the bind address and family.
func (n NetworkSettings) Validate() error {
	switch n.IPFamily {
	case "", IPFamilyAny, IPFamilyIPv4, IPFamilyIPv6:
	default:
		return fmt.Errorf("unknown ip family %q", n.IPFamily)
	}
	if n.BindIP == "" || strings.EqualFold(n.BindIP, BindDefault) {
		return nil
	}
	ip := net.ParseIP(n.BindIP)
	if ip == nil {
		return fmt.Errorf("invalid bind address %q", n.BindIP)
	}
	if n.IPFamily == IPFamilyIPv4 && ip.To4() == nil {
		return fmt.Errorf("bind address %s is not IPv4", n.BindIP)
	}
	if n.IPFamily == IPFamilyIPv6 && ip.To4() != nil {
		return fmt.Errorf("bind address %s is not IPv6", n.BindIP)
	}
	return nil
}

// Settings renders the network options as output settings.
func (n NetworkSettings) Settings() handles.Settings {
	bind := n.BindIP
	if bind == "" {
		bind = BindDefault
	}
	family := n.IPFamily
	if family == "" {
		family = IPFamilyAny
	}
	return handles.Settings{
		"bind_ip":         bind,
		"ip_family":       family,
		"low_latency":     n.LowLatency,
		"dynamic_bitrate": n.DynamicBitrate,
	}
}

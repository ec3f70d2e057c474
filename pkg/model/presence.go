package model

import "time"

// HeartbeatTimeout is how long a vendor stays online without a heartbeat.
// Readers apply it lazily; the sweep applies it eagerly.
const HeartbeatTimeout = 30 * time.Second

// VendorPresence is the ephemeral online/offline record for a vendor,
// including the product set they can currently fulfill.
type VendorPresence struct {
	VendorID            string    `json:"vendor_id"`
	IsOnline            bool      `json:"is_online"`
	LastHeartbeat       time.Time `json:"last_heartbeat"`
	AvailableProductIDs []string  `json:"available_product_ids"`
	SessionToken        string    `json:"session_token,omitempty"`
	ConnectedAt         time.Time `json:"connected_at,omitempty"`
}

// OnlineAt applies the staleness rule: a vendor is online only if the
// flag is set and the last heartbeat is within the timeout window.
func (p *VendorPresence) OnlineAt(now time.Time, timeout time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastHeartbeat) <= timeout
}

// MatchedProducts returns the subset of requested ids the vendor can
// supply, preserving requested order.
func (p *VendorPresence) MatchedProducts(requested []string) []string {
	available := make(map[string]struct{}, len(p.AvailableProductIDs))
	for _, id := range p.AvailableProductIDs {
		available[id] = struct{}{}
	}
	var matched []string
	for _, id := range requested {
		if _, ok := available[id]; ok {
			matched = append(matched, id)
		}
	}
	return matched
}

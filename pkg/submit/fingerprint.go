package submit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"orderdesk-hq/callisto/pkg/order"
)

// lineKey is the per-line contribution to the fingerprint: resolved item id
// and quantity, nothing else. Prices are excluded deliberately so a catalog
// rate change never re-opens the duplicate window.
type lineKey struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
}

// Fingerprint computes the deterministic at-most-once key:
//
//	SHA256(file_hash ‖ customer_id ‖ line_item_hash ‖ day_bucket)
//
// where line_item_hash is the SHA-256 of the JSON of the (item_id, quantity)
// pairs sorted by item id, and day_bucket is the received date in UTC.
func Fingerprint(o *order.CanonicalOrder) string {
	lines := make([]lineKey, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		lines = append(lines, lineKey{ItemID: li.ResolvedItemID, Quantity: li.Quantity})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })

	lineJSON, _ := json.Marshal(lines)
	lineHash := sha256.Sum256(lineJSON)

	dayBucket := o.Meta.ReceivedAt.UTC().Format("2006-01-02")

	h := sha256.New()
	h.Write([]byte(o.Meta.FileHash))
	h.Write([]byte{0})
	h.Write([]byte(o.Customer.ResolvedID))
	h.Write([]byte{0})
	h.Write(lineHash[:])
	h.Write([]byte{0})
	h.Write([]byte(dayBucket))
	return hex.EncodeToString(h.Sum(nil))
}

// DayBucket returns the UTC day bucket used in the fingerprint.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

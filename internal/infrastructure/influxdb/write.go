package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAdmissionOutcome records the result of a login or registration
// attempt. The write is non-blocking; data is batched and sent
// asynchronously.
//
// op is "login" or "register". code is the stable failure code, or "ok"
// on success — tags stay low-cardinality, so user identity is a field,
// not a tag.
func (c *Client) WriteAdmissionOutcome(op, code, userID string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count":       1,
		"duration_ms": float64(duration.Milliseconds()),
	}
	if userID != "" {
		fields["user_id"] = userID
	}

	point := write.NewPoint(
		"auth_events",
		map[string]string{
			"op":   op,
			"code": code,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

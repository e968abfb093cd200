// Package extract implements a schema-agnostic search for quota-shaped
// fields in arbitrary JSON payloads. Providers with fragile or
// undocumented response schemas run their entire body through it.
package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// signalKeys are generic quota-signal key fragments. An object must
// contain at least one of these in a key name to be a candidate
// container at all, no matter how many preference keywords it matches.
var signalKeys = []string{
	"remaining", "left", "available", "balance",
	"limit", "cap", "quota", "entitlement",
	"used", "usage", "consumed",
	"reset", "renew", "refresh",
}

// Synonym lists checked in priority order when parsing a container.
var (
	remainingKeys = []string{
		"remaining_tokens", "tokens_remaining", "remaining_quota",
		"quota_remaining", "remaining", "left", "available", "balance",
	}
	usedKeys = []string{
		"used_tokens", "tokens_used", "used_quota", "usedquota",
		"current_usage", "currentusage", "currentvalue", "used",
		"consumed", "current",
	}
	totalKeys = []string{
		"total_tokens", "token_limit", "total_quota", "totalquota",
		"usage_limit", "usagelimit", "quota_limit", "total", "limit",
		"quota", "entitlement", "cap", "max",
	}
	resetKeys = []string{
		"reset_at", "resets_at", "resetat", "resetsat", "reset_time",
		"resettime", "next_reset_time", "nextresettime", "next_reset",
		"nextreset", "quota_reset_date", "reset_date", "resetdate",
		"reset", "renews_at", "renewsat", "refresh_at",
	}
)

// Fields is the result of parsing a quota container.
type Fields struct {
	Remaining *float64
	Used      *float64
	Total     *float64
	ResetAt   *time.Time
}

// HasData reports whether at least one field was extracted.
func (f Fields) HasData() bool {
	return f.Remaining != nil || f.Used != nil || f.Total != nil || f.ResetAt != nil
}

// FindBestContainer walks every nested object in root and returns the
// one most likely to hold quota data. Each object scores one point per
// own key matching any of the preferred keywords, plus one point if it
// also carries a generic quota-signal key. Objects without a signal key
// are never candidates. Ties keep the first object in traversal order.
func FindBestContainer(root gjson.Result, keywords []string) (gjson.Result, bool) {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var best gjson.Result
	bestScore := -1

	var walk func(node gjson.Result)
	walk = func(node gjson.Result) {
		if node.IsObject() {
			score, signal := scoreObject(node, lowered)
			if signal && score > bestScore {
				bestScore = score
				best = node
			}
		}
		if node.IsObject() || node.IsArray() {
			node.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		}
	}
	walk(root)

	if bestScore < 0 {
		return gjson.Result{}, false
	}
	return best, true
}

func scoreObject(obj gjson.Result, keywords []string) (score int, signal bool) {
	obj.ForEach(func(key, _ gjson.Result) bool {
		name := strings.ToLower(key.String())
		for _, kw := range keywords {
			if kw != "" && strings.Contains(name, kw) {
				score++
				break
			}
		}
		if !signal {
			for _, sig := range signalKeys {
				if strings.Contains(name, sig) {
					signal = true
					break
				}
			}
		}
		return true
	})
	if signal {
		score++
	}
	return score, signal
}

// ParseQuota extracts remaining/used/total/reset from a container by
// checking synonym field names in priority order. When exactly one of
// the three counters is missing it is derived from the other two,
// clamped to be non-negative.
func ParseQuota(container gjson.Result) Fields {
	var f Fields
	f.Remaining = firstNumber(container, remainingKeys)
	f.Used = firstNumber(container, usedKeys)
	f.Total = firstNumber(container, totalKeys)
	f.ResetAt = firstTimestamp(container, resetKeys)
	f.deriveMissing()
	return f
}

func (f *Fields) deriveMissing() {
	switch {
	case f.Remaining == nil && f.Used != nil && f.Total != nil:
		v := *f.Total - *f.Used
		if v < 0 {
			v = 0
		}
		f.Remaining = &v
	case f.Used == nil && f.Remaining != nil && f.Total != nil:
		v := *f.Total - *f.Remaining
		if v < 0 {
			v = 0
		}
		f.Used = &v
	case f.Total == nil && f.Used != nil && f.Remaining != nil:
		v := *f.Used + *f.Remaining
		f.Total = &v
	}
}

func firstNumber(container gjson.Result, synonyms []string) *float64 {
	for _, syn := range synonyms {
		v, ok := lookup(container, syn)
		if !ok {
			continue
		}
		if n, ok := Number(v); ok {
			return &n
		}
	}
	return nil
}

func firstTimestamp(container gjson.Result, synonyms []string) *time.Time {
	for _, syn := range synonyms {
		v, ok := lookup(container, syn)
		if !ok {
			continue
		}
		if t, ok := Timestamp(v); ok {
			return &t
		}
	}
	return nil
}

// lookup finds an own key of container matching syn case-insensitively.
func lookup(container gjson.Result, syn string) (gjson.Result, bool) {
	var found gjson.Result
	var ok bool
	container.ForEach(func(key, value gjson.Result) bool {
		if strings.EqualFold(key.String(), syn) {
			found = value
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// Number accepts native JSON numbers, numeric strings, and single-field
// {"value": n} wrapper objects. Anything else is treated as absent.
func Number(v gjson.Result) (float64, bool) {
	switch {
	case v.Type == gjson.Number:
		return v.Num, true
	case v.Type == gjson.String:
		trimmed := strings.TrimSpace(v.String())
		if trimmed == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case v.IsObject():
		inner := v.Get("value")
		if inner.Exists() && !inner.IsObject() {
			return Number(inner)
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// Timestamp accepts ISO-8601 strings, fixed-format date strings, and
// epoch numbers. Epoch values above 1e10 are treated as milliseconds.
func Timestamp(v gjson.Result) (time.Time, bool) {
	if v.Type == gjson.Number {
		return epochToTime(v.Num)
	}
	if v.Type != gjson.String {
		return time.Time{}, false
	}

	value := strings.TrimSpace(v.String())
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return epochToTime(n)
	}
	return time.Time{}, false
}

func epochToTime(n float64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	sec := int64(n)
	if n > 1e10 {
		sec = int64(n / 1000)
	}
	return time.Unix(sec, 0).UTC(), true
}

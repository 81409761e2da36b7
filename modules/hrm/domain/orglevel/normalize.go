package orglevel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RawRecord is one option object as it arrives in a bootstrap payload.
type RawRecord map[string]json.RawMessage

// NormalizeOptions converts raw records of a level into canonical OptionRecords.
//
// Input schema, per record (level key K, parent key P):
//
//	{ "K_id": int, "K_name": string, "P_id": int|null }
//
// "id" and "name" are accepted when the prefixed keys are absent; ids may be
// JSON numbers or numeric strings. Names are trimmed and NFC normalized.
// Segment records carry no parent. Output order follows input order.
func NormalizeOptions(level Level, records []RawRecord) ([]OptionRecord, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("orglevel: normalize: invalid level %d", int(level))
	}
	out := make([]OptionRecord, 0, len(records))
	key := level.Key()
	for i, rec := range records {
		id, ok, err := readID(rec, key+"_id", "id")
		if err != nil {
			return nil, fmt.Errorf("orglevel: %s option %d: %w", key, i, err)
		}
		if !ok {
			return nil, fmt.Errorf("orglevel: %s option %d: missing id", key, i)
		}
		name, err := readName(rec, key+"_name", "name")
		if err != nil {
			return nil, fmt.Errorf("orglevel: %s option %d: %w", key, i, err)
		}
		opt := OptionRecord{ID: id, Name: name}
		if parent, hasParent := level.Parent(); hasParent {
			pid, ok, err := readID(rec, parent.Key()+"_id")
			if err != nil {
				return nil, fmt.Errorf("orglevel: %s option %d: parent: %w", key, i, err)
			}
			if ok {
				opt.ParentID = &pid
			}
		}
		out = append(out, opt)
	}
	return out, nil
}

func readID(rec RawRecord, keys ...string) (int64, bool, error) {
	for _, k := range keys {
		raw, ok := rec[k]
		if !ok || isNull(raw) {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			id, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return 0, false, fmt.Errorf("%s: %w", k, err)
			}
			return id, true, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, fmt.Errorf("%s: expected integer, got %s", k, string(raw))
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", k, err)
		}
		return id, true, nil
	}
	return 0, false, nil
}

func readName(rec RawRecord, keys ...string) (string, error) {
	for _, k := range keys {
		raw, ok := rec[k]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%s: expected string, got %s", k, string(raw))
		}
		return norm.NFC.String(strings.TrimSpace(s)), nil
	}
	return "", nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

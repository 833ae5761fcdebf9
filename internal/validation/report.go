package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"devicepulse/internal/jsoncol"
)

var ErrInvalidPayload = errors.New("invalid payload")

// FieldError describes one rejected field of a report submission.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Report is a submission that passed validation.
type Report struct {
	DeviceID            string
	Timestamp           *time.Time
	BatteryLevel        float64
	WifiNetwork         string
	WifiSignalStrength  int
	MobileDataAvailable bool
	RAMUsage            float64
	StorageUsage        float64
	NetworkTraffic      jsoncol.JSON
}

// DecodeReport parses a JSON body and validates it. deviceIDHint fills
// device_id when the body has no such key (MQTT topics carry the id). A body
// that is not a JSON object yields ErrInvalidPayload.
func DecodeReport(body []byte, deviceIDHint string) (Report, []FieldError, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Report{}, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if raw == nil {
		return Report{}, nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}
	if _, ok := raw["device_id"]; !ok && deviceIDHint != "" {
		hint, err := json.Marshal(deviceIDHint)
		if err != nil {
			return Report{}, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		raw["device_id"] = hint
	}
	rep, errs := ValidateReport(raw)
	return rep, errs, nil
}

// ValidateReport checks every field and collects all violations. The returned
// Report is only meaningful when the violation list is empty.
func ValidateReport(raw map[string]json.RawMessage) (Report, []FieldError) {
	var (
		rep  Report
		errs []FieldError
	)
	fail := func(field, msg string, value json.RawMessage) {
		fe := FieldError{Field: field, Message: msg}
		if len(value) > 0 {
			var v any
			if json.Unmarshal(value, &v) == nil {
				fe.Value = v
			}
		}
		errs = append(errs, fe)
	}

	// Stored trimmed so the id matches what alias updates look up.
	if v, ok := str(raw["device_id"]); !ok || strings.TrimSpace(v) == "" {
		fail("device_id", "must be a non-empty string", raw["device_id"])
	} else {
		rep.DeviceID = strings.TrimSpace(v)
	}

	if v, ok := number(raw["battery_level"]); !ok || v < 0 || v > 100 {
		fail("battery_level", "must be a number between 0 and 100", raw["battery_level"])
	} else {
		rep.BatteryLevel = v
	}

	if v, ok := str(raw["wifi_network"]); !ok {
		fail("wifi_network", "must be a string", raw["wifi_network"])
	} else {
		rep.WifiNetwork = v
	}

	if v, ok := integer(raw["wifi_signal_strength"]); !ok {
		fail("wifi_signal_strength", "must be an integer", raw["wifi_signal_strength"])
	} else {
		rep.WifiSignalStrength = v
	}

	if v, ok := boolean(raw["mobile_data_available"]); !ok {
		fail("mobile_data_available", "must be a boolean", raw["mobile_data_available"])
	} else {
		rep.MobileDataAvailable = v
	}

	if v, ok := number(raw["ram_usage"]); !ok || v < 0 {
		fail("ram_usage", "must be a number >= 0", raw["ram_usage"])
	} else {
		rep.RAMUsage = v
	}

	if v, ok := number(raw["storage_usage"]); !ok || v < 0 {
		fail("storage_usage", "must be a number >= 0", raw["storage_usage"])
	} else {
		rep.StorageUsage = v
	}

	if nt, present := raw["network_traffic"]; present && !isNull(nt) {
		if !isObject(nt) {
			fail("network_traffic", "must be an object", nt)
		} else {
			rep.NetworkTraffic = jsoncol.JSON(append([]byte(nil), nt...))
		}
	}

	if ts, present := raw["timestamp"]; present && !isNull(ts) {
		var s string
		if err := json.Unmarshal(ts, &s); err != nil {
			fail("timestamp", "must be an RFC 3339 string", ts)
		} else if t, err := time.Parse(time.RFC3339Nano, s); err != nil {
			fail("timestamp", "must be an RFC 3339 string", ts)
		} else {
			utc := t.UTC()
			rep.Timestamp = &utc
		}
	}

	return rep, errs
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func str(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	s, ok := str(raw)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func integer(raw json.RawMessage) (int, bool) {
	f, ok := number(raw)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// boolean accepts true/false and the string or numeric forms express-style
// clients send ("true", "0", 1).
func boolean(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if s, ok := str(raw); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

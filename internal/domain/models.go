package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"devicepulse/internal/jsoncol"

	"github.com/google/uuid"
)

// Report is one immutable telemetry submission.
type Report struct {
	ID                  uuid.UUID    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DeviceID            string       `gorm:"type:varchar(255);not null;index:idx_reports_device_time,priority:1" json:"deviceId"`
	Timestamp           time.Time    `gorm:"column:reported_at;not null;index:idx_reports_device_time,priority:2;index:idx_reports_time" json:"timestamp"`
	BatteryLevel        float64      `gorm:"not null" json:"batteryLevel"`
	WifiNetwork         string       `gorm:"type:varchar(255);not null" json:"wifiNetwork"`
	WifiSignalStrength  int          `gorm:"not null" json:"wifiSignalStrength"`
	MobileDataAvailable bool         `gorm:"not null" json:"mobileDataAvailable"`
	RAMUsage            float64      `gorm:"column:ram_usage;not null" json:"ramUsage"`
	StorageUsage        float64      `gorm:"not null" json:"storageUsage"`
	NetworkTraffic      jsoncol.JSON `gorm:"type:json" json:"networkTraffic"`
	CreatedAt           time.Time    `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (Report) TableName() string { return "reports" }

// Keys of the traffic payload the dashboard charts.
const (
	DownloadSpeedKey = "download_speed_mbps"
	UploadSpeedKey   = "upload_speed_mbps"
)

// Speeds extracts the throughput figures. Each is read on its own and is nil
// only when missing or not numeric; numeric strings are accepted.
func (r Report) Speeds() (download, upload *float64) {
	var fields map[string]json.RawMessage
	if err := r.NetworkTraffic.Decode(&fields); err != nil || fields == nil {
		return nil, nil
	}
	return speed(fields[DownloadSpeedKey]), speed(fields[UploadSpeedKey])
}

func speed(raw json.RawMessage) *float64 {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

type DeviceAlias struct {
	ID        uint      `gorm:"primaryKey"`
	DeviceID  string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_device_aliases_device"`
	Alias     string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

func (DeviceAlias) TableName() string { return "device_aliases" }

// Operator is a dashboard login identity.
type Operator struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	Username  string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_operators_username"`
	Algo      string    `gorm:"type:varchar(32);not null"`
	Hash      []byte    `gorm:"not null"`
	Salt      []byte    `gorm:"not null"`
	Params    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (Operator) TableName() string { return "operators" }

// LatestReport is one row of the latest-state-per-device view.
type LatestReport struct {
	Report
	Alias *string
}

// DisplayName falls back to the raw device id when no alias is set.
func (l LatestReport) DisplayName() string {
	if l.Alias != nil && *l.Alias != "" {
		return *l.Alias
	}
	return l.DeviceID
}

// All lists the models AutoMigrate manages.
func All() []any {
	return []any{&Report{}, &DeviceAlias{}, &Operator{}}
}

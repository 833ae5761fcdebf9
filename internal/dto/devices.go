package dto

import "time"

type DeviceSummary struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Battery            float64    `json:"battery"`
	Wifi               string     `json:"wifi"`
	WifiSignalStrength int        `json:"wifiSignalStrength"`
	MobileData         string     `json:"mobileData"`
	RAM                float64    `json:"ram"`
	Storage            float64    `json:"storage"`
	LastUpdated        time.Time  `json:"lastUpdated"`
	Connected          bool       `json:"connected"`
	LastSeen           *time.Time `json:"lastSeen"`
}

type DevicesResponse struct {
	Devices []DeviceSummary `json:"devices"`
}

type LivenessResponse struct {
	DeviceID  string     `json:"deviceId"`
	Connected bool       `json:"connected"`
	LastSeen  *time.Time `json:"lastSeen"`
	Threshold string     `json:"threshold"`
}

type UpdateAliasRequest struct {
	DeviceID string `json:"deviceId"`
	Alias    string `json:"alias"`
}

package dto

import (
	"time"

	"devicepulse/internal/domain"
	"devicepulse/internal/validation"
)

type IngestResponse struct {
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	NewDevice bool      `json:"newDevice"`
}

type ValidationErrorResponse struct {
	Errors []validation.FieldError `json:"errors"`
}

type TrafficPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	DownloadSpeed *float64  `json:"downloadSpeed"`
	UploadSpeed   *float64  `json:"uploadSpeed"`
}

type HistoryResponse struct {
	Stats              []domain.Report `json:"stats"`
	DeviceAlias        string          `json:"deviceAlias"`
	NetworkTrafficData []TrafficPoint  `json:"networkTrafficData"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"devicepulse/internal/auth"
	"devicepulse/internal/domain"
	"devicepulse/internal/dto"
	"devicepulse/internal/liveness"
	"devicepulse/internal/observability/middleware"
	"devicepulse/internal/store"
	"devicepulse/internal/validation"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 100
	defaultQueryTimeout = 5 * time.Second
)

type Options struct {
	QueryTimeout time.Duration
	HistoryLimit int
	Hasher       *auth.PasswordHasher
	Sessions     *auth.SessionSigner
	SessionTTL   time.Duration
}

type Service struct {
	store        *store.Store
	tracker      *liveness.Tracker
	queryTimeout time.Duration
	historyLimit int
	hasher       *auth.PasswordHasher
	sessions     *auth.SessionSigner
	sessionTTL   time.Duration
}

func New(st *store.Store, tracker *liveness.Tracker, opts Options) *Service {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewPasswordHasher(auth.DefaultArgon2Params)
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	return &Service{
		store:        st,
		tracker:      tracker,
		queryTimeout: opts.QueryTimeout,
		historyLimit: opts.HistoryLimit,
		hasher:       opts.Hasher,
		sessions:     opts.Sessions,
		sessionTTL:   opts.SessionTTL,
	}
}

func (s *Service) Tracker() *liveness.Tracker { return s.tracker }

// Ready reports whether the store answers within the query timeout.
func (s *Service) Ready(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.store.Ping(qctx)
}

// IngestInput is one raw report submission. DeviceIDHint fills device_id when
// the body omits it (MQTT topics carry the id).
type IngestInput struct {
	Body         []byte
	DeviceIDHint string
}

// Ingest validates and persists one report, then marks the device as seen.
// Nothing is written when validation fails.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (dto.IngestResponse, error) {
	rep, violations, err := validation.DecodeReport(in.Body, in.DeviceIDHint)
	if err != nil {
		return dto.IngestResponse{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(violations) > 0 {
		return dto.IngestResponse{}, &ValidationError{Violations: violations}
	}

	now := s.tracker.Now().UTC()
	ts := now
	if rep.Timestamp != nil {
		ts = *rep.Timestamp
	}
	report := domain.Report{
		ID:                  uuid.New(),
		DeviceID:            rep.DeviceID,
		Timestamp:           ts,
		BatteryLevel:        rep.BatteryLevel,
		WifiNetwork:         rep.WifiNetwork,
		WifiSignalStrength:  rep.WifiSignalStrength,
		MobileDataAvailable: rep.MobileDataAvailable,
		RAMUsage:            rep.RAMUsage,
		StorageUsage:        rep.StorageUsage,
		NetworkTraffic:      rep.NetworkTraffic,
	}

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.store.Reports().Create(qctx, &report); err != nil {
		return dto.IngestResponse{}, fmt.Errorf("save report: %w", err)
	}

	isNew := s.tracker.Touch(report.DeviceID, now)
	attrs := []any{
		"device_id", report.DeviceID,
		"report_id", report.ID,
		"request_id", middleware.RequestIDFromContext(ctx),
	}
	if isNew {
		slog.Info("report from newly connected device", append(attrs,
			"battery_level", report.BatteryLevel,
			"wifi_network", report.WifiNetwork,
			"mobile_data_available", report.MobileDataAvailable,
		)...)
	} else {
		slog.Debug("report received", attrs...)
	}

	return dto.IngestResponse{
		Message:   "Data received and saved",
		ID:        report.ID.String(),
		DeviceID:  report.DeviceID,
		Timestamp: report.Timestamp,
		NewDevice: isNew,
	}, nil
}

// Devices returns the latest state of every device that ever reported.
// A store failure fails the whole listing.
func (s *Service) Devices(ctx context.Context) (dto.DevicesResponse, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.store.Reports().LatestPerDevice(qctx)
	if err != nil {
		return dto.DevicesResponse{}, fmt.Errorf("latest per device: %w", err)
	}

	// One consistent view of liveness for the whole listing.
	now := s.tracker.Now()
	seen := s.tracker.Snapshot()
	devices := make([]dto.DeviceSummary, 0, len(rows))
	for _, row := range rows {
		summary := dto.DeviceSummary{
			ID:                 row.DeviceID,
			Name:               row.DisplayName(),
			Battery:            row.BatteryLevel,
			Wifi:               row.WifiNetwork,
			WifiSignalStrength: row.WifiSignalStrength,
			MobileData:         mobileDataLabel(row.MobileDataAvailable),
			RAM:                row.RAMUsage,
			Storage:            row.StorageUsage,
			LastUpdated:        row.Timestamp,
		}
		if at, ok := seen[row.DeviceID]; ok {
			summary.LastSeen = &at
			summary.Connected = now.Sub(at) <= s.tracker.Threshold()
		}
		devices = append(devices, summary)
	}
	return dto.DevicesResponse{Devices: devices}, nil
}

func mobileDataLabel(available bool) string {
	if available {
		return "Available"
	}
	return "Unavailable"
}

// History returns the newest reports of one device. An unknown device has
// an empty history, not an error.
func (s *Service) History(ctx context.Context, deviceID string) (dto.HistoryResponse, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	reports, err := s.store.Reports().History(qctx, deviceID, s.historyLimit)
	if err != nil {
		return dto.HistoryResponse{}, fmt.Errorf("history: %w", err)
	}
	alias, err := s.aliasOrID(qctx, deviceID)
	if err != nil {
		return dto.HistoryResponse{}, err
	}

	traffic := make([]dto.TrafficPoint, 0, len(reports))
	for _, r := range reports {
		down, up := r.Speeds()
		traffic = append(traffic, dto.TrafficPoint{Timestamp: r.Timestamp, DownloadSpeed: down, UploadSpeed: up})
	}
	return dto.HistoryResponse{Stats: reports, DeviceAlias: alias, NetworkTrafficData: traffic}, nil
}

func (s *Service) aliasOrID(ctx context.Context, deviceID string) (string, error) {
	row, err := s.store.Aliases().Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return deviceID, nil
		}
		return "", fmt.Errorf("alias: %w", err)
	}
	return row.Alias, nil
}

// UpdateAlias sets the display name for a device; repeating it is harmless.
func (s *Service) UpdateAlias(ctx context.Context, req dto.UpdateAliasRequest) error {
	deviceID := strings.TrimSpace(req.DeviceID)
	alias := strings.TrimSpace(req.Alias)
	if deviceID == "" || alias == "" {
		return fmt.Errorf("%w: deviceId and alias are required", ErrInvalidRequest)
	}
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.store.Aliases().Upsert(qctx, deviceID, alias); err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}
	return nil
}

func (s *Service) Liveness(deviceID string) dto.LivenessResponse {
	resp := dto.LivenessResponse{
		DeviceID:  deviceID,
		Connected: s.tracker.IsConnected(deviceID, s.tracker.Now()),
		Threshold: s.tracker.Threshold().String(),
	}
	if seen, ok := s.tracker.LastSeen(deviceID); ok {
		resp.LastSeen = &seen
	}
	return resp
}

// Login checks operator credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, req dto.LoginRequest) (string, error) {
	if s.sessions == nil {
		return "", errors.New("login: session signer not configured")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return "", ErrInvalidCredentials
	}
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	op, err := s.store.Operators().GetByUsername(qctx, username)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}
	if !s.hasher.Verify(req.Password, op) {
		return "", ErrInvalidCredentials
	}
	return s.sessions.Issue(op.Username, s.sessionTTL)
}

// SeedOperator creates the operator account unless it already exists.
func (s *Service) SeedOperator(ctx context.Context, username, password string) (bool, error) {
	op, err := s.hasher.NewOperator(strings.TrimSpace(username), password)
	if err != nil {
		return false, err
	}
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.store.Operators().Ensure(qctx, op)
}

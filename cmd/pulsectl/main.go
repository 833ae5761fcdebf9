package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"devicepulse/internal/auth"
	"devicepulse/internal/dto"
	"devicepulse/internal/validation"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "push":
		err = runPush(args)
	case "devices":
		err = runDevices(args)
	case "history":
		err = runHistory(args)
	case "alias":
		err = runAlias(args)
	case "login":
		err = runLogin(args)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  push      Send one or more telemetry reports")
	fmt.Fprintln(os.Stderr, "  devices   List the latest state of every device")
	fmt.Fprintln(os.Stderr, "  history   Show the recent reports of one device")
	fmt.Fprintln(os.Stderr, "  alias     Set a device's display name")
	fmt.Fprintln(os.Stderr, "  login     Obtain a dashboard session token")
	os.Exit(2)
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func commonFlags(fs *flag.FlagSet) *client {
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}
	fs.StringVar(&c.baseURL, "base-url", getenv("PULSECTL_BASE_URL", "http://localhost:3000"), "collector base URL")
	fs.StringVar(&c.token, "token", os.Getenv("PULSECTL_TOKEN"), "dashboard session token (when login is required)")
	return c
}

func (c *client) do(method, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

// call sends the request and fails on any 4xx/5xx, returning the body otherwise.
func (c *client) call(method, path string, payload any) ([]byte, *http.Response, error) {
	var (
		body []byte
		ct   string
		err  error
	)
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, nil, err
		}
		ct = "application/json"
	}
	resp, err := c.do(method, path, ct, body)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close response body: %v\n", cerr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, err
	}
	if resp.StatusCode >= 400 {
		if len(data) == 0 {
			data = []byte(resp.Status)
		}
		return nil, resp, fmt.Errorf("%s %s failed: %s", method, path, strings.TrimSpace(string(data)))
	}
	return data, resp, nil
}

type pushOpts struct {
	deviceID string
	battery  float64
	wifi     string
	signal   int
	mobile   bool
	ram      float64
	storage  float64
	down     float64
	up       float64
	count    int
	interval time.Duration
	jitter   bool
}

func parsePushFlags(args []string) (*client, pushOpts, error) {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := commonFlags(fs)

	var o pushOpts
	fs.StringVar(&o.deviceID, "device", "", "device id (generated if empty)")
	fs.Float64Var(&o.battery, "battery", 80, "battery level 0-100")
	fs.StringVar(&o.wifi, "wifi", "devicepulse-lab", "wifi network name")
	fs.IntVar(&o.signal, "signal", -60, "wifi signal strength (dBm)")
	fs.BoolVar(&o.mobile, "mobile", false, "mobile data available")
	fs.Float64Var(&o.ram, "ram", 45, "RAM usage")
	fs.Float64Var(&o.storage, "storage", 60, "storage usage")
	fs.Float64Var(&o.down, "down", -1, "download speed Mbps (omitted when negative)")
	fs.Float64Var(&o.up, "up", -1, "upload speed Mbps (omitted when negative)")
	fs.IntVar(&o.count, "count", 1, "number of reports to send")
	fs.DurationVar(&o.interval, "interval", 5*time.Second, "delay between reports")
	fs.BoolVar(&o.jitter, "jitter", false, "randomise readings around the given values")

	if err := fs.Parse(args); err != nil {
		return nil, pushOpts{}, err
	}
	if o.count < 1 {
		return nil, pushOpts{}, fmt.Errorf("count must be at least 1")
	}
	if strings.TrimSpace(o.deviceID) == "" {
		o.deviceID = uuid.NewString()
	}
	return c, o, nil
}

func buildReport(o pushOpts, rnd *rand.Rand) map[string]any {
	battery, ram, storage, signal := o.battery, o.ram, o.storage, o.signal
	down, up := o.down, o.up
	if rnd != nil {
		battery = clamp(battery+rnd.Float64()*4-2, 0, 100)
		ram = clamp(ram+rnd.Float64()*10-5, 0, ram+5)
		storage = clamp(storage+rnd.Float64()*2-1, 0, storage+1)
		signal += rnd.IntN(7) - 3
		if down >= 0 {
			down = clamp(down+rnd.Float64()*20-10, 0, down+10)
		}
		if up >= 0 {
			up = clamp(up+rnd.Float64()*6-3, 0, up+3)
		}
	}

	report := map[string]any{
		"device_id":             o.deviceID,
		"battery_level":         battery,
		"wifi_network":          o.wifi,
		"wifi_signal_strength":  signal,
		"mobile_data_available": o.mobile,
		"ram_usage":             ram,
		"storage_usage":         storage,
	}
	if down >= 0 || up >= 0 {
		traffic := map[string]any{}
		if down >= 0 {
			traffic["download_speed_mbps"] = down
		}
		if up >= 0 {
			traffic["upload_speed_mbps"] = up
		}
		report["network_traffic"] = traffic
	}
	return report
}

// checkReport runs the collector's validation locally so bad flags fail
// before anything is sent.
func checkReport(report map[string]any) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, violations, err := validation.DecodeReport(body, "")
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		msgs := make([]string, 0, len(violations))
		for _, v := range violations {
			msgs = append(msgs, v.Field+": "+v.Message)
		}
		return fmt.Errorf("invalid report: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func runPush(args []string) error {
	c, o, err := parsePushFlags(args)
	if err != nil {
		return err
	}
	var rnd *rand.Rand
	if o.jitter {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	for i := 0; i < o.count; i++ {
		if i > 0 {
			time.Sleep(o.interval)
		}
		report := buildReport(o, rnd)
		if err := checkReport(report); err != nil {
			return err
		}
		data, _, err := c.call(http.MethodPost, "/api/stats", report)
		if err != nil {
			return err
		}
		var res dto.IngestResponse
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
	}
	return nil
}

func runDevices(args []string) error {
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, _, err := c.call(http.MethodGet, "/devices", nil)
	if err != nil {
		return err
	}
	var res dto.DevicesResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	return printJSON(res)
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := commonFlags(fs)
	deviceID := fs.String("device", "", "device id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*deviceID) == "" {
		return fmt.Errorf("device id is required")
	}

	data, _, err := c.call(http.MethodGet, "/api/stats/"+url.PathEscape(*deviceID), nil)
	if err != nil {
		return err
	}
	var res json.RawMessage = data
	return printJSON(res)
}

func runAlias(args []string) error {
	fs := flag.NewFlagSet("alias", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := commonFlags(fs)
	deviceID := fs.String("device", "", "device id")
	alias := fs.String("alias", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*deviceID) == "" || strings.TrimSpace(*alias) == "" {
		return fmt.Errorf("device and alias are required")
	}

	data, _, err := c.call(http.MethodPost, "/api/updateAlias", dto.UpdateAliasRequest{DeviceID: *deviceID, Alias: *alias})
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(string(data)))
	return nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c := commonFlags(fs)
	username := fs.String("user", getenv("PULSECTL_USER", ""), "operator username")
	password := fs.String("password", os.Getenv("PULSECTL_PASSWORD"), "operator password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, resp, err := c.call(http.MethodPost, "/login", dto.LoginRequest{Username: *username, Password: *password})
	if err != nil {
		return err
	}
	var res dto.LoginResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("login failed: %s", res.Message)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == auth.SessionCookie {
			fmt.Println(ck.Value)
			return nil
		}
	}
	return fmt.Errorf("login succeeded but no session cookie was returned")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package ptz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skyspot/skyspot/pkg/logger"
)

// AlpacaConfig configures an ASCOM Alpaca alt-az mount.
// Reference: https://ascom-standards.org/Developer/Alpaca.htm
type AlpacaConfig struct {
	BaseURL      string
	DeviceNumber int
	Timeout      time.Duration

	// Mount misalignment corrections, in degrees. DeclinationDeg converts
	// true bearings to magnetic ones for mounts aligned by compass.
	AzimuthOffsetDeg  float64
	AltitudeOffsetDeg float64
	DeclinationDeg    float64
}

// AlpacaDriver points an Alpaca telescope mount. It implements Pointer.
type AlpacaDriver struct {
	cfg        AlpacaConfig
	clientID   int
	httpClient *http.Client
	logger     *logger.Logger
	connected  bool
}

func NewAlpacaDriver(cfg AlpacaConfig, log *logger.Logger) *AlpacaDriver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AlpacaDriver{
		cfg:        cfg,
		clientID:   int(time.Now().Unix()),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Named("ptz"),
	}
}

// Connect opens the device session.
func (d *AlpacaDriver) Connect(ctx context.Context) error {
	params := url.Values{}
	params.Add("Connected", "true")
	if err := d.put(ctx, "connected", params); err != nil {
		return fmt.Errorf("failed to connect to mount: %w", err)
	}
	d.connected = true
	d.logger.Info("Connected to mount", logger.String("base_url", d.cfg.BaseURL))
	return nil
}

// Disconnect closes the device session.
func (d *AlpacaDriver) Disconnect(ctx context.Context) error {
	if !d.connected {
		return nil
	}
	params := url.Values{}
	params.Add("Connected", "false")
	if err := d.put(ctx, "connected", params); err != nil {
		return fmt.Errorf("failed to disconnect from mount: %w", err)
	}
	d.connected = false
	return nil
}

// MoveTo slews the mount toward the given pose. The configured offsets and
// declination are applied first, the azimuth wrapped into [0, 360) and the
// altitude clamped to [0, 90]; the commanded pose is returned.
func (d *AlpacaDriver) MoveTo(ctx context.Context, azimuthDeg, altitudeDeg float64) (float64, float64, error) {
	if !d.connected {
		return 0, 0, ErrNotConnected
	}

	az := aimAzimuth(azimuthDeg, d.cfg.AzimuthOffsetDeg+d.cfg.DeclinationDeg)
	alt := aimAltitude(altitudeDeg, d.cfg.AltitudeOffsetDeg)

	params := url.Values{}
	params.Add("Azimuth", fmt.Sprintf("%.6f", az))
	params.Add("Altitude", fmt.Sprintf("%.6f", alt))
	if err := d.put(ctx, "slewtoaltaz", params); err != nil {
		return 0, 0, err
	}
	return az, alt, nil
}

// put performs a form-encoded PUT against an Alpaca telescope endpoint. A
// device-reported failure comes back as a CommandError; transport failures
// are returned as-is.
func (d *AlpacaDriver) put(ctx context.Context, endpoint string, params url.Values) error {
	params.Add("ClientID", strconv.Itoa(d.clientID))
	params.Add("ClientTransactionID", strconv.Itoa(transactionID()))

	apiURL := fmt.Sprintf("%s/api/v1/telescope/%d/%s",
		strings.TrimRight(d.cfg.BaseURL, "/"), d.cfg.DeviceNumber, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mount returned HTTP %d", resp.StatusCode)
	}

	var parsed alpacaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.ErrorNumber != 0 {
		return &CommandError{
			Op:  endpoint,
			Err: fmt.Errorf("alpaca error %d: %s", parsed.ErrorNumber, parsed.ErrorMessage),
		}
	}
	return nil
}

// alpacaResponse is the standard Alpaca API response envelope.
type alpacaResponse struct {
	Value               interface{} `json:"Value"`
	ClientTransactionID int         `json:"ClientTransactionID"`
	ServerTransactionID int         `json:"ServerTransactionID"`
	ErrorNumber         int         `json:"ErrorNumber"`
	ErrorMessage        string      `json:"ErrorMessage"`
}

// transactionID keeps within the 32-bit signed range the Alpaca spec
// requires.
func transactionID() int {
	return int(time.Now().UnixNano() % 2147483647)
}

package spy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
)

// defaultCommandTimeout bounds a single control request when the
// configuration does not specify one.
const defaultCommandTimeout = 10 * time.Second

// Client talks to one camera server over its HTTP control interface.
//
// The client is stateless: it does not track camera or server state.
// Version-gated operations take the server's major version explicitly so
// the caller (which owns the latest status fetch) decides the dialect.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client

	// streamClient has no timeout; the event stream is long-lived.
	streamClient *http.Client
}

// NewClient creates a client for the given server.
//
// Parameters:
//   - cfg: Server connection details from config.yaml
//   - timeout: Per-request timeout for control calls (0 uses the default)
func NewClient(cfg config.SpyServerConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Client{
		baseURL:      fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		username:     cfg.Username,
		password:     cfg.Password,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the server's control URL (scheme://host:port).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchSystemInfo retrieves and parses the server's full status document.
//
// This is the reconciliation primitive: it returns the authoritative
// server and camera state in one call.
func (c *Client) FetchSystemInfo(ctx context.Context) (*SystemInfo, error) {
	body, err := c.fetchBody(ctx, pathSystemInfo, nil)
	if err != nil {
		return nil, err
	}
	return ParseSystemInfo(body)
}

// SetCameraActive switches a camera between active and passive mode.
//
// On v4+ servers this arms or disarms motion capture. Older servers use
// the dedicated active/passive mode endpoints.
func (c *Client) SetCameraActive(ctx context.Context, camera int, active bool, majorVersion int) error {
	if majorVersion >= 4 {
		return c.get(ctx, pathMotionCapture, cameraQuery(camera, url.Values{
			"arm": {armValue(active)},
		}))
	}

	path := pathPassiveMode
	if active {
		path = pathActiveMode
	}
	return c.get(ctx, path, cameraQuery(camera, nil))
}

// SetCaptureArmed arms or disarms one capture mode on a camera.
//
// Only v4+ servers expose per-mode control; older servers return
// ErrUnsupportedVersion.
func (c *Client) SetCaptureArmed(ctx context.Context, camera int, capture CaptureType, armed bool, majorVersion int) error {
	if majorVersion < 4 {
		return fmt.Errorf("%w: per-mode arm requires v4+, server is v%d", ErrUnsupportedVersion, majorVersion)
	}

	path, ok := capturePaths[capture]
	if !ok {
		return fmt.Errorf("unknown capture type %q", capture)
	}
	return c.get(ctx, path, cameraQuery(camera, url.Values{
		"arm": {armValue(armed)},
	}))
}

// TriggerMotion artificially triggers motion processing for a camera.
// Fire-and-forget: success means the server accepted the request.
func (c *Client) TriggerMotion(ctx context.Context, camera int) error {
	return c.get(ctx, pathTriggerMotion, cameraQuery(camera, nil))
}

// SetSensitivity changes a camera's motion detection sensitivity (0-100).
func (c *Client) SetSensitivity(ctx context.Context, camera int, level int) error {
	return c.postForm(ctx, pathCameraSetup, cameraQuery(camera, url.Values{
		"mdSensitivityText": {strconv.Itoa(level)},
		"action":            {"save"},
		"Submit":            {"Submit"},
	}))
}

// SetOverlay changes a camera's overlay text, font size, and position.
//
// v3+ servers use the camera settings form; older servers have a
// dedicated overlay settings form with different field names.
func (c *Client) SetOverlay(ctx context.Context, camera int, text string, pointSize int, position string, majorVersion int) error {
	if majorVersion >= 3 {
		return c.postForm(ctx, pathCameraSettings, cameraQuery(camera, url.Values{
			"overlayText":     {text},
			"overlayFontSize": {strconv.Itoa(pointSize)},
			"overlayPosition": {position},
			"action":          {"save"},
			"Save":            {"Save"},
		}))
	}

	return c.postForm(ctx, pathOverlaySettings, cameraQuery(camera, url.Values{
		"overlayText":  {text},
		"fontSizeText": {strconv.Itoa(pointSize)},
		"positionMenu": {position},
		"Save":         {"Save"},
	}))
}

// PTZ sends a pan/tilt/zoom command code to a camera.
// Check the camera's PTZ capability before calling.
func (c *Client) PTZ(ctx context.Context, camera int, code PTZCode) error {
	return c.get(ctx, pathPTZ, cameraQuery(camera, url.Values{
		"command": {strconv.Itoa(int(code))},
	}))
}

// RunScript asks the server to run a named script from its scripts folder.
// Fire-and-forget.
func (c *Client) RunScript(ctx context.Context, name string) error {
	return c.get(ctx, pathRunScript, url.Values{"name": {name}})
}

// PlaySound asks the server to play a named sound from its sound list.
// Fire-and-forget.
func (c *Client) PlaySound(ctx context.Context, name string) error {
	return c.get(ctx, pathPlaySound, url.Values{"name": {name}})
}

// RestartWebServer asks the server to restart its web interface.
func (c *Client) RestartWebServer(ctx context.Context) error {
	return c.get(ctx, pathRestartWebServer, nil)
}

// fileListPattern extracts entries from the server's HTML directory listings.
var fileListPattern = regexp.MustCompile(`<a href=.*?>([^<]+)</a>`)

// FetchScripts retrieves the names of scripts the server can run.
func (c *Client) FetchScripts(ctx context.Context) ([]string, error) {
	return c.fetchList(ctx, pathScripts)
}

// FetchSounds retrieves the names of sounds the server can play.
func (c *Client) FetchSounds(ctx context.Context) ([]string, error) {
	return c.fetchList(ctx, pathSounds)
}

// fetchList retrieves and parses an HTML link list endpoint.
func (c *Client) fetchList(ctx context.Context, path string) ([]string, error) {
	body, err := c.fetchBody(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, match := range fileListPattern.FindAllStringSubmatch(string(body), -1) {
		names = append(names, match[1])
	}
	return names, nil
}

// cameraQuery adds the cameraNum parameter to a query.
func cameraQuery(camera int, query url.Values) url.Values {
	if query == nil {
		query = url.Values{}
	}
	query.Set("cameraNum", strconv.Itoa(camera))
	return query
}

// armValue encodes an arm/disarm flag for the control endpoints.
func armValue(armed bool) string {
	if armed {
		return "1"
	}
	return "0"
}

// get issues a control GET and discards the response body.
func (c *Client) get(ctx context.Context, path string, query url.Values) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// postForm issues a control POST with form-encoded body and discards the response.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	resp, err := c.do(ctx, http.MethodPost, path, nil, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// fetchBody issues a GET and returns the full response body.
func (c *Client) fetchBody(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrConnection, err)
	}
	return body, nil
}

// do issues a request and classifies transport and status errors.
// The returned response has status 200; all other outcomes are errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, formBody(form))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return resp, nil
}

// formBody encodes form values as a request body.
func formBody(form url.Values) io.Reader {
	return strings.NewReader(form.Encode())
}

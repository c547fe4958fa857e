package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/app"
	"github.com/vocaldocs/api/internal/auth"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/queue"
	ws "github.com/vocaldocs/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

const (
	testUserID = "test-user-123"
	testEmail  = "test@example.com"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	backends *app.Backends
}

// setupApp builds the same app as cmd/server in inline mode. AWS is not
// configured, so storage and tables are in memory and the AI clients are
// mocks. Every upload runs the whole pipeline before the response returns.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server:  config.ServerConfig{Env: "test", LogLevel: "error"},
		JWT:     config.JWTConfig{Secret: testJWTSecret},
		Storage: config.StorageConfig{Bucket: "tts-bucket"},
		Polly:   config.PollyConfig{MaxChars: 3000},
		PDF:     config.PDFConfig{DPI: 72},
		Intake: config.IntakeConfig{
			MaxPDFBytes:  1024 * 1024,
			MaxTextChars: 10000,
			MaxPages:     50,
		},
		Jobs:  config.JobsConfig{TTLHours: 84},
		Queue: config.QueueConfig{Mode: "inline"},
	}
	log := zerolog.Nop()

	backends, err := app.NewBackends(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("failed to build backends: %v", err)
	}

	hub := ws.NewHub(log)
	go hub.Run()

	dispatcher := &queue.InlineDispatcher{Log: log}
	stages := app.NewStages(cfg, backends, dispatcher, hub, log)
	stages.Splitter.WithTempDir(t.TempDir())
	dispatcher.Stages = queue.Stages{
		Split:      stages.Splitter.Run,
		Extract:    stages.Extractor.Run,
		Synthesize: stages.Synthesizer.Run,
	}

	// No Redis: the rate limiter passes everything through.
	fiberApp := app.NewHTTPApp(app.HTTPDeps{
		Config:     cfg,
		Backends:   backends,
		Dispatcher: dispatcher,
		Hub:        hub,
		Log:        log,
	})

	return &testApp{app: fiberApp, backends: backends}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, testUserID, testEmail)
}

func generateTokenFor(t *testing.T, userID, email string) string {
	t.Helper()
	signed, err := auth.GenerateLegacyToken(testJWTSecret, userID, email, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequestAs(t, app, generateToken(t), method, path, body)
}

func doRequestAs(t *testing.T, app *fiber.App, token, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// submitText uploads text as the default user and returns the reference key.
func submitText(t *testing.T, ta *testApp, text string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text, "language": "english"})
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/upload", string(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	ref, _ := result["reference_key"].(string)
	if ref == "" {
		t.Fatalf("expected reference_key in response, got %v", result)
	}
	return ref
}

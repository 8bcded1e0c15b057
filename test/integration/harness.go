// Package integration provides a reusable test harness for end-to-end
// integration testing of the caseflow server. It starts a full HTTP server
// with in-memory stores, the shipped flow modules, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/audit"
	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/internal/config"
	"github.com/fleetops/caseflow/internal/flows"
	"github.com/fleetops/caseflow/internal/observability"
	"github.com/fleetops/caseflow/internal/registry"
	"github.com/fleetops/caseflow/internal/sla"
	"github.com/fleetops/caseflow/internal/stepconfig"
	"github.com/fleetops/caseflow/internal/transport"
)

// TestHarness encapsulates a fully wired caseflow instance with in-memory
// stores for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Engine      *bpm.Engine
	Escalator   *sla.Escalator
	CaseStore   *bpm.MemCaseStore
	ConfigStore *stepconfig.MemStore
	AuditStore  *audit.MemStore
	FlowStore   *flows.Store
	Registry    *registry.Registry

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	handlerTimeout time.Duration
	escalationTick time.Duration
}

// WithDefinitions overrides the definition directories to load instead of the
// repository's shipped config/definitions.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithEscalationInterval sets the escalation scanner interval. The scanner is
// never started automatically; tests drive it through Escalator.ScanOnce.
func WithEscalationInterval(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.escalationTick = d
	}
}

// NewTestHarness creates and starts a full caseflow test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		escalationTick: time.Minute,
	}
	for _, opt := range opts {
		opt(hc)
	}

	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{shippedDefinitionsDir()}
	}

	h := &TestHarness{t: t}

	// Step 1: Load and seed step configuration.
	defs, err := stepconfig.NewLoader().LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if err := defs.Validate(); err != nil {
		t.Fatalf("validate definitions: %v", err)
	}
	h.ConfigStore = stepconfig.NewMemStore()
	if err := h.ConfigStore.Seed(defs); err != nil {
		t.Fatalf("seed definitions: %v", err)
	}

	// Step 2: Register the shipped flow modules and freeze the registry.
	h.FlowStore = flows.NewStore()
	h.Registry = registry.New()
	if err := flows.RegisterAll(h.Registry, flows.Deps{Store: h.FlowStore}); err != nil {
		t.Fatalf("register flows: %v", err)
	}
	h.Registry.Freeze()

	// Step 3: Build the engine and the escalator over shared stores.
	h.CaseStore = bpm.NewMemCaseStore()
	h.AuditStore = audit.NewMemStore()
	h.Engine = bpm.NewEngine(h.CaseStore, h.ConfigStore, h.AuditStore, h.Registry, nil, nil)
	h.Escalator = sla.NewEscalator(h.CaseStore, h.ConfigStore, h.AuditStore, zap.NewNop(), nil, hc.escalationTick)

	// Step 4: Create JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 5: Build config.
	h.cfg = &config.Config{
		Server: config.ServerConfig{
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			HandlerTimeout: hc.handlerTimeout,
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: config.IdentityConfig{
			Issuer:     h.issuer.Issuer(),
			Audience:   h.issuer.Audience(),
			JWKSURL:    h.issuer.JWKSURL(),
			Algorithms: []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"email":      "email",
				"roles":      "roles",
			},
		},
	}

	// Step 6: Build router with full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour, zap.NewNop())

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Engine:       h.Engine,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Logger:       zap.NewNop(),
		Ready: observability.ReadinessChecks{
			StepsRegistered: func() bool { return h.Registry.Len() > 0 },
		},
	})

	// Step 7: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// OfficerClaims returns TestClaims for a registration officer.
func OfficerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-officer",
		Email:     "officer@fleet.example.com",
		Roles:     []string{"registration-officer"},
	}
}

// SupervisorClaims returns TestClaims for a supervisor who also holds the
// registration officer role.
func SupervisorClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-supervisor",
		Email:     "supervisor@fleet.example.com",
		Roles:     []string{"supervisor", "registration-officer"},
	}
}

// ClerkClaims returns TestClaims for a user with no workflow roles.
func ClerkClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-clerk",
		Email:     "clerk@fleet.example.com",
		Roles:     []string{"billing-clerk"},
	}
}

// --- Helpers ---

// shippedDefinitionsDir returns the absolute path to the repository's seed
// definition directory so the suite exercises the same YAML the server ships.
func shippedDefinitionsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "config", "definitions")
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

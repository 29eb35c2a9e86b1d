package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/broadcast"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/codec"
	"github.com/gavrikov2044-bot/cs-legit/internal/config"
	"github.com/gavrikov2044-bot/cs-legit/internal/gate"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
	"github.com/gavrikov2044-bot/cs-legit/internal/session"
	"github.com/gavrikov2044-bot/cs-legit/internal/store/sqlite"
	"github.com/gavrikov2044-bot/cs-legit/internal/updatecheck"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	db      *sql.DB
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	db, err := sqlite.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c, err := codec.New("test-encryption-key")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	artifacts, err := artifact.NewStore(t.TempDir(), c)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	accounts := account.NewService(sqlite.NewAccountStore(db))
	licenses := license.NewService(sqlite.NewLicenseStore(db))
	cat := catalog.NewService(sqlite.NewCatalogStore(db), artifacts)
	sessions, err := session.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	api := New(Deps{
		Accounts:  accounts,
		Licenses:  licenses,
		Catalog:   cat,
		Artifacts: artifacts,
		Sessions:  sessions,
		Gate:      gate.New(sessions, accounts, licenses),
		Hub:       broadcast.New(),
		Checker:   updatecheck.New(730, time.Second, artifacts, updatecheck.WithEndpoint("http://127.0.0.1:1")),
		CITokens: []config.CIToken{
			{Secret: "ci-upload-secret", Scopes: []string{"upload", "offsets"}},
			{Secret: "ci-status-secret", Scopes: []string{"status"}},
		},
	}, ReadyProbe{DB: db}, config.ServerConfig{}, "test")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		db:      db,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body io.Reader, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) postJSON(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return c.do(http.MethodPost, path, bytes.NewReader(payload), headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

// register creates an account, consuming the license key, and returns a
// fresh session token for it.
func (c *apiClient) register(username, key, hwid string) (int64, string) {
	c.t.Helper()
	resp := c.postJSON("/api/auth/register", map[string]any{
		"username":    username,
		"password":    "password123",
		"license_key": key,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}
	created := decode[map[string]any](c.t, resp)
	id := int64(created["id"].(float64))
	return id, c.login(username, hwid)
}

func (c *apiClient) login(username, hwid string) string {
	c.t.Helper()
	resp := c.postJSON("/api/auth/login", map[string]any{
		"username": username,
		"password": "password123",
		"hwid":     hwid,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	payload := decode[loginResponse](c.t, resp)
	if payload.Token == "" {
		c.t.Fatalf("empty session token")
	}
	return payload.Token
}

// registerAdmin creates the administrator directly against the database;
// registration is closed, so the first operator can never arrive over HTTP.
func (c *apiClient) registerAdmin(username string) string {
	c.t.Helper()
	accounts := account.NewService(sqlite.NewAccountStore(c.db))
	id, err := accounts.Create(context.Background(), username, "password123")
	if err != nil {
		c.t.Fatalf("create admin: %v", err)
	}
	if _, err := c.db.Exec("update users set is_admin = 1 where id = ?", id); err != nil {
		c.t.Fatalf("promote admin: %v", err)
	}
	return c.login(username, "")
}

func (c *apiClient) issueKey(adminToken, product string, days int) string {
	c.t.Helper()
	resp := c.postJSON("/api/admin/licenses", map[string]any{
		"product_id": product,
		"days":       days,
		"count":      1,
	}, withToken(adminToken))
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("issue license status: %d", resp.StatusCode)
	}
	payload := decode[map[string][]string](c.t, resp)
	keys := payload["keys"]
	if len(keys) != 1 {
		c.t.Fatalf("expected one key, got %d", len(keys))
	}
	return keys[0]
}

func (c *apiClient) createGame(adminToken, id, name string) {
	c.t.Helper()
	resp := c.postJSON("/api/admin/games", map[string]any{
		"id":   id,
		"name": name,
	}, withToken(adminToken))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create game status: %d", resp.StatusCode)
	}
}

func (c *apiClient) uploadVersion(headers map[string]string, product, version string, contents []byte) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("version", version); err != nil {
		c.t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("file", product+".bin")
	if err != nil {
		c.t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(contents); err != nil {
		c.t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		c.t.Fatalf("close multipart: %v", err)
	}
	headers["Content-Type"] = mw.FormDataContentType()
	return c.do(http.MethodPost, "/api/admin/games/"+product+"/versions", &buf, headers)
}

func withToken(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRegisterActivateVerifyDownloadFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "recoil-assist", "Recoil Assist")

	build := []byte("plaintext build payload v1.2.0")
	resp := api.uploadVersion(withToken(admin), "recoil-assist", "1.2.0", build)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload version status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	key := api.issueKey(admin, "recoil-assist", 30)

	_, token := api.register("player", key, "HWID-AAAA-0001")

	// A second key for the same product merges into the existing license.
	extra := api.issueKey(admin, "recoil-assist", 30)
	resp = api.postJSON("/api/auth/activate", map[string]any{"key": extra}, withToken(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status: %d", resp.StatusCode)
	}
	redeemed := decode[map[string]any](t, resp)
	if redeemed["product_id"] != "recoil-assist" || redeemed["merged"] != true {
		t.Fatalf("unexpected redemption result: %v", redeemed)
	}

	headers := withToken(token)
	headers["X-HWID"] = "HWID-AAAA-0001"
	resp = api.get("/api/auth/verify", url.Values{"game": {"recoil-assist"}}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %d", resp.StatusCode)
	}
	verdict := decode[map[string]any](t, resp)
	if verdict["authorized"] != true {
		t.Fatalf("expected authorized verdict, got %v", verdict)
	}

	resp = api.get("/api/download/recoil-assist/latest", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status: %d", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read download body: %v", err)
	}
	if !bytes.Equal(got, build) {
		t.Fatalf("downloaded bytes differ from uploaded build")
	}

	// The delivery must land in the account's access log.
	resp = api.get("/api/auth/me", nil, withToken(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	me := decode[map[string]any](t, resp)
	downloads, ok := me["downloads"].([]any)
	if !ok || len(downloads) != 1 {
		t.Fatalf("expected one recorded download, got %v", me["downloads"])
	}
}

func TestActivateRejectsUsedKey(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "aim-trainer", "Aim Trainer")
	keyA := api.issueKey(admin, "aim-trainer", 7)
	keyB := api.issueKey(admin, "aim-trainer", 7)

	api.register("first", keyA, "")
	_, second := api.register("second", keyB, "")

	// keyA was consumed by the first registration.
	resp := api.postJSON("/api/auth/activate", map[string]any{"key": keyA}, withToken(second))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for reused key, got %d", resp.StatusCode)
	}
}

func TestRegisterRequiresValidLicenseKey(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "aim-trainer", "Aim Trainer")

	// No key at all.
	resp := api.postJSON("/api/auth/register", map[string]any{
		"username": "walkin",
		"password": "password123",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.StatusCode)
	}

	// A made-up key must not leave a half-created account behind.
	resp = api.postJSON("/api/auth/register", map[string]any{
		"username":    "walkin",
		"password":    "password123",
		"license_key": "AIM-TRAINER-0000-0000-0000",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid key, got %d", resp.StatusCode)
	}

	// The same username succeeds with a real key, proving the rollback.
	key := api.issueKey(admin, "aim-trainer", 7)
	resp = api.postJSON("/api/auth/register", map[string]any{
		"username":    "walkin",
		"password":    "password123",
		"license_key": key,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with valid key, got %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	if created["product_id"] != "aim-trainer" {
		t.Fatalf("registration did not redeem the key: %v", created)
	}

	token := api.login("walkin", "")
	resp = api.get("/api/auth/me", nil, withToken(token))
	me := decode[map[string]any](t, resp)
	if licenses, ok := me["licenses"].([]any); !ok || len(licenses) != 1 {
		t.Fatalf("expected one license from registration, got %v", me["licenses"])
	}
}

func TestVerifyDeniesBannedAccount(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "wallhack", "Wallhack")
	key := api.issueKey(admin, "wallhack", 30)

	id, token := api.register("cheater", key, "HWID-X")

	resp := api.postJSON("/api/admin/users/"+itoa(id)+"/ban",
		map[string]any{"reason": "chargeback"}, withToken(admin))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ban status: %d", resp.StatusCode)
	}

	headers := withToken(token)
	headers["X-HWID"] = "HWID-X"
	resp = api.get("/api/auth/verify", url.Values{"game": {"wallhack"}}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for banned account, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] == "" {
		t.Fatalf("expected ban detail in error body")
	}
}

func TestVerifyEnforcesHardwareIdentity(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "esp", "ESP")
	key := api.issueKey(admin, "esp", 30)

	_, token := api.register("roamer", key, "MACHINE-ONE")

	headers := withToken(token)
	headers["X-HWID"] = "MACHINE-TWO"
	resp := api.get("/api/auth/verify", url.Values{"game": {"esp"}}, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign machine, got %d", resp.StatusCode)
	}

	delete(headers, "X-HWID")
	resp = api.get("/api/auth/verify", url.Values{"game": {"esp"}}, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without hardware id, got %d", resp.StatusCode)
	}
}

func TestDownloadRequiresLicense(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "trigger", "Trigger")
	resp := api.uploadVersion(withToken(admin), "trigger", "0.1.0", []byte("bits"))
	resp.Body.Close()

	// The account holds a license for a different product only.
	api.createGame(admin, "warmup", "Warmup")
	warmupKey := api.issueKey(admin, "warmup", 7)
	_, token := api.register("freeloader", warmupKey, "HWID-F")
	headers := withToken(token)
	headers["X-HWID"] = "HWID-F"
	resp = api.get("/api/download/trigger/latest", nil, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without license, got %d", resp.StatusCode)
	}
}

func TestAdminSurfaceGuarded(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "spray", "Spray")
	key := api.issueKey(admin, "spray", 7)
	_, token := api.register("civilian", key, "")

	resp := api.get("/api/admin/stats", nil, withToken(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}

	resp = api.get("/api/admin/stats", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestCITokenScopes(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "radar", "Radar")

	// Upload-scoped token can push a version through /api/ci.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("version", "2.0.0")
	part, _ := mw.CreateFormFile("file", "radar.bin")
	part.Write([]byte("ci build"))
	mw.Close()
	resp := api.do(http.MethodPost, "/api/ci/radar/versions", &buf, map[string]string{
		"X-CI-Token":   "ci-upload-secret",
		"Content-Type": mw.FormDataContentType(),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ci upload status: %d", resp.StatusCode)
	}

	// Status-scoped token must not reach the upload route.
	resp = api.do(http.MethodPost, "/api/ci/radar/versions", bytes.NewReader(nil), map[string]string{
		"X-CI-Token": "ci-status-secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for out-of-scope token, got %d", resp.StatusCode)
	}

	// Unknown tokens are rejected outright.
	resp = api.postJSON("/api/ci/radar/status", map[string]any{"status": "updating"},
		map[string]string{"X-CI-Token": "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", resp.StatusCode)
	}

	resp = api.postJSON("/api/ci/radar/status",
		map[string]any{"status": "updating", "message": "Deploying 2.0.1"},
		map[string]string{"X-CI-Token": "ci-status-secret"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ci status update status: %d", resp.StatusCode)
	}
}

func TestOffsetsUploadAndFetch(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "overlay", "Overlay")
	key := api.issueKey(admin, "overlay", 30)

	_, token := api.register("player", key, "HWID-O")

	doc := []byte(`{"entity_list":"0xDEADBEEF","view_matrix":"0x1A2B3C"}`)
	headers := map[string]string{"X-CI-Token": "ci-upload-secret", "Content-Type": "application/json"}
	resp := api.do(http.MethodPost, "/api/ci/overlay/offsets?build=14099", bytes.NewReader(doc), headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("offsets upload status: %d", resp.StatusCode)
	}
	uploaded := decode[map[string]string](t, resp)
	if uploaded["hash"] == "" {
		t.Fatalf("expected offsets hash in response")
	}

	playerHeaders := withToken(token)
	playerHeaders["X-HWID"] = "HWID-O"
	resp = api.get("/api/offsets/overlay", nil, playerHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("offsets fetch status: %d", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(bytes.TrimSpace(got), doc) {
		t.Fatalf("offsets round trip mismatch: %s", got)
	}

	// Hash endpoint needs only a session, not the full license chain.
	resp = api.get("/api/offsets/overlay/hash", nil, withToken(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("offsets hash status: %d", resp.StatusCode)
	}
	hashed := decode[map[string]string](t, resp)
	if hashed["hash"] != uploaded["hash"] {
		t.Fatalf("hash mismatch: %q vs %q", hashed["hash"], uploaded["hash"])
	}

	// Rejects garbage documents.
	resp = api.do(http.MethodPost, "/api/ci/overlay/offsets", bytes.NewReader([]byte("not json")), headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid offsets JSON, got %d", resp.StatusCode)
	}
}

func TestGamesStatusSurface(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "spinbot", "Spinbot")

	resp := api.get("/api/games/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint: %d", resp.StatusCode)
	}
	overall := decode[map[string]any](t, resp)
	// No version or offsets yet, so the product sits in maintenance.
	if overall["status"] != "maintenance" {
		t.Fatalf("expected maintenance rollup, got %v", overall["status"])
	}

	resp = api.postJSON("/api/admin/games/spinbot/status",
		map[string]any{"status": "offline", "message": "Emergency takedown"}, withToken(admin))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d", resp.StatusCode)
	}

	// The status cache is invalidated by the write, so the override is
	// visible immediately.
	resp = api.get("/api/games/spinbot", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("game endpoint: %d", resp.StatusCode)
	}
	game := decode[map[string]map[string]any](t, resp)
	if game["health"]["status"] != "offline" {
		t.Fatalf("expected offline override, got %v", game["health"]["status"])
	}

	// The toggle flips anything non-operational back to operational, and a
	// second press starts the update cycle.
	resp = api.do(http.MethodPost, "/api/admin/games/spinbot/toggle", nil, withToken(admin))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status: %d", resp.StatusCode)
	}
	toggled := decode[map[string]any](t, resp)
	if toggled["status"] != "operational" {
		t.Fatalf("expected operational after toggle, got %v", toggled["status"])
	}

	resp = api.do(http.MethodPost, "/api/admin/games/spinbot/toggle", nil, withToken(admin))
	toggled = decode[map[string]any](t, resp)
	if toggled["status"] != "updating" {
		t.Fatalf("expected updating after second toggle, got %v", toggled["status"])
	}
}

func TestAdminLicenseLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "bhop", "Bhop")
	api.createGame(admin, "starter", "Starter")
	starterKey := api.issueKey(admin, "starter", 7)
	id, token := api.register("player", starterKey, "")

	resp := api.postJSON("/api/admin/users/"+itoa(id)+"/licenses",
		map[string]any{"product_id": "bhop", "days": 14}, withToken(admin))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extend status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/api/auth/me", nil, withToken(token))
	me := decode[map[string]any](t, resp)
	licensesOut := me["licenses"].([]any)
	if len(licensesOut) != 2 {
		t.Fatalf("expected two licenses after extend, got %d", len(licensesOut))
	}

	resp = api.do(http.MethodDelete, "/api/admin/users/"+itoa(id)+"/licenses/bhop", nil, withToken(admin))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status: %d", resp.StatusCode)
	}

	resp = api.get("/api/admin/licenses", url.Values{"product": {"bhop"}}, withToken(admin))
	listed := decode[map[string][]json.RawMessage](t, resp)
	if len(listed["licenses"]) != 0 {
		t.Fatalf("expected no licenses after revoke, got %d", len(listed["licenses"]))
	}
}

func TestVersionChangelogRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "skin-changer", "Skin Changer")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("version", "2.3.0")
	mw.WriteField("changelog", "Reworked inventory hook for the new build")
	part, _ := mw.CreateFormFile("file", "skin-changer.bin")
	part.Write([]byte("release build"))
	mw.Close()
	headers := withToken(admin)
	headers["Content-Type"] = mw.FormDataContentType()
	resp := api.do(http.MethodPost, "/api/admin/games/skin-changer/versions", &buf, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %d", resp.StatusCode)
	}

	resp = api.get("/api/games/skin-changer/versions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("versions status: %d", resp.StatusCode)
	}
	listed := decode[map[string][]map[string]any](t, resp)
	versions := listed["versions"]
	if len(versions) != 1 {
		t.Fatalf("expected one version, got %d", len(versions))
	}
	if versions[0]["changelog"] != "Reworked inventory hook for the new build" {
		t.Fatalf("changelog not carried through: %v", versions[0])
	}
}

func TestDownloadLabelsVersionFromBlob(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin("operator")
	api.createGame(admin, "ghost", "Ghost")
	resp := api.uploadVersion(withToken(admin), "ghost", "3.1.4", []byte("ghost build"))
	resp.Body.Close()
	key := api.issueKey(admin, "ghost", 7)
	_, token := api.register("player", key, "HWID-G")

	// Wipe the catalog row so only the encrypted blob remains.
	if _, err := api.db.Exec("delete from versions"); err != nil {
		t.Fatalf("delete versions: %v", err)
	}

	headers := withToken(token)
	headers["X-HWID"] = "HWID-G"
	resp = api.get("/api/download/ghost/latest", nil, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status: %d", resp.StatusCode)
	}

	resp = api.get("/api/auth/me", nil, withToken(token))
	me := decode[map[string]any](t, resp)
	downloads, ok := me["downloads"].([]any)
	if !ok || len(downloads) != 1 {
		t.Fatalf("expected one recorded download, got %v", me["downloads"])
	}
	entry := downloads[0].(map[string]any)
	if entry["version"] != "3.1.4" {
		t.Fatalf("expected version label from blob name, got %q", entry["version"])
	}
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

package http_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/egm96/internal/adapters/http"
	"github.com/samirrijal/egm96/internal/core/domain"
	"github.com/samirrijal/egm96/internal/core/usecases"
	"github.com/samirrijal/egm96/internal/pkg/geoid"
)

// ---- Stub grid source ----

type stubSource struct {
	grid *geoid.Grid
	err  error
}

func (s *stubSource) Describe() string { return "stub:grid" }

func (s *stubSource) LoadGrid(ctx context.Context) (*geoid.Grid, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.grid, nil
}

// uniformGrid returns a grid whose every sample is cm centimetres.
func uniformGrid(t *testing.T, cm int16) *geoid.Grid {
	t.Helper()
	b := make([]byte, geoid.FileSize)
	for k := 0; k < geoid.SampleCount; k++ {
		binary.BigEndian.PutUint16(b[2*k:], uint16(cm))
	}
	g, err := geoid.Decode(b)
	if err != nil {
		t.Fatalf("decode grid: %v", err)
	}
	return g
}

// ---- Helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

// loadedDeps returns dependencies backed by a uniform 15 m grid.
func loadedDeps(t *testing.T) (*handler.Dependencies, *stubSource) {
	t.Helper()
	src := &stubSource{grid: uniformGrid(t, 1500)}
	svc := usecases.NewGeoidService(src, nil)
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return &handler.Dependencies{Geoid: svc}, src
}

func degradedDeps() *handler.Dependencies {
	return &handler.Dependencies{Geoid: usecases.NewGeoidService(&stubSource{err: errors.New("no grid")}, nil)}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func decodeAPIError(t *testing.T, body io.Reader) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.NewDecoder(body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func postJSON(path, body string) *nethttp.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---- Offset ----

func TestOffset_Success(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/geoid/offset?lat=43.26&lon=-2.93", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(handler.HeaderDegraded) != "" {
		t.Error("unexpected degraded header")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, no-cache" {
		t.Errorf("offsets must revalidate after a reload, got Cache-Control %q", cc)
	}

	var off domain.GeoidOffset
	if err := json.NewDecoder(resp.Body).Decode(&off); err != nil {
		t.Fatal(err)
	}
	if math.Abs(off.Undulation-15) > 1e-9 || off.Degraded {
		t.Errorf("expected 15 m, got %+v", off)
	}
	if off.Location.Lat != 43.26 || off.Location.Lon != -2.93 {
		t.Errorf("unexpected location %+v", off.Location)
	}
}

func TestOffset_Degraded(t *testing.T) {
	app := setupApp(degradedDeps())

	req := httptest.NewRequest("GET", "/v1/geoid/offset?lat=10&lon=200", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(handler.HeaderDegraded) != "true" {
		t.Error("expected degraded header")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("degraded answers must not be cached, got %q", cc)
	}

	var off domain.GeoidOffset
	json.NewDecoder(resp.Body).Decode(&off)
	if off.Undulation != 0 || !off.Degraded {
		t.Errorf("expected degraded zero offset, got %+v", off)
	}
}

func TestOffset_BadParams(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	tests := []struct {
		name  string
		query string
	}{
		{"missing both", ""},
		{"missing lon", "?lat=10"},
		{"not a number", "?lat=abc&lon=10"},
		{"nan", "?lat=NaN&lon=10"},
		{"lat too high", "?lat=90.5&lon=10"},
		{"lat too low", "?lat=-91&lon=10"},
		{"lon too high", "?lat=0&lon=360.1"},
		{"lon too low", "?lat=0&lon=-181"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/geoid/offset"+tt.query, nil)
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != 400 {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			apiErr := decodeAPIError(t, resp.Body)
			if apiErr.Code != "bad_request" || apiErr.Message == "" {
				t.Errorf("unexpected error body %+v", apiErr)
			}
			if apiErr.RequestID == "" {
				t.Error("expected request id in error body")
			}
		})
	}
}

func TestOffset_BoundaryCoordinates(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	for _, q := range []string{"lat=90&lon=0", "lat=-90&lon=360", "lat=-90&lon=-180", "lat=0&lon=359.99"} {
		req := httptest.NewRequest("GET", "/v1/geoid/offset?"+q, nil)
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 200 {
			t.Errorf("%s: expected 200, got %d", q, resp.StatusCode)
		}
	}
}

// ---- Batch ----

func TestOffsets_Success(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	req := postJSON("/v1/geoid/offsets", `{"points":[{"lat":0,"lon":0},{"lat":-45.5,"lon":350},{"lat":89.9,"lon":-179.9}]}`)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var offs []domain.GeoidOffset
	if err := json.NewDecoder(resp.Body).Decode(&offs); err != nil {
		t.Fatal(err)
	}
	if len(offs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(offs))
	}
	if offs[1].Location.Lon != 350 {
		t.Errorf("results out of order: %+v", offs)
	}
	for _, off := range offs {
		if math.Abs(off.Undulation-15) > 1e-9 {
			t.Errorf("expected 15 m, got %v", off.Undulation)
		}
	}
}

func TestOffsets_Rejects(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	var many strings.Builder
	many.WriteString(`{"points":[`)
	for i := 0; i <= usecases.MaxBatchPoints; i++ {
		if i > 0 {
			many.WriteByte(',')
		}
		fmt.Fprintf(&many, `{"lat":%d,"lon":%d}`, i%90, i%180)
	}
	many.WriteString(`]}`)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"malformed", `{"points":`, 400},
		{"empty", `{"points":[]}`, 400},
		{"out of range point", `{"points":[{"lat":0,"lon":0},{"lat":100,"lon":0}]}`, 400},
		{"too many points", many.String(), 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := app.Test(postJSON("/v1/geoid/offsets", tt.body), -1)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
		})
	}
}

// ---- Height conversion ----

func TestHeight(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	tests := []struct {
		name     string
		query    string
		wantCode int
		want     float64
		wantTo   domain.Datum
	}{
		{"default from ellipsoidal", "lat=46.5&lon=7.9&h=100", 200, 85, domain.DatumOrthometric},
		{"from orthometric", "lat=46.5&lon=7.9&h=85&from=orthometric", 200, 100, domain.DatumEllipsoidal},
		{"missing h", "lat=46.5&lon=7.9", 400, 0, ""},
		{"bad datum", "lat=46.5&lon=7.9&h=1&from=navd88", 400, 0, ""},
		{"bad lat", "lat=99&lon=7.9&h=1", 400, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/geoid/height?"+tt.query, nil)
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if tt.wantCode != 200 {
				return
			}
			var conv domain.HeightConversion
			json.NewDecoder(resp.Body).Decode(&conv)
			if math.Abs(conv.Result-tt.want) > 1e-9 || conv.To != tt.wantTo {
				t.Errorf("got %+v, want result %v to %s", conv, tt.want, tt.wantTo)
			}
		})
	}
}

// ---- Grid ----

func TestGridInfo(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/grid", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}

	var info domain.GridInfo
	json.NewDecoder(resp.Body).Decode(&info)
	if !info.Loaded || info.Rows != geoid.Rows || info.Cols != geoid.Cols || info.Source != "stub:grid" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.MinCM != 1500 || info.MaxCM != 1500 || info.IntervalDeg != 0.25 {
		t.Errorf("unexpected stats %+v", info)
	}
	if info.LoadedAt == nil || info.LoadedAt.IsZero() {
		t.Errorf("expected loaded_at, got %v", info.LoadedAt)
	}
}

func TestGridInfo_Degraded(t *testing.T) {
	app := setupApp(degradedDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/grid", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	if strings.Contains(body, "loaded_at") {
		t.Errorf("degraded grid info must omit loaded_at: %s", body)
	}
	if !strings.Contains(body, `"loaded":false`) {
		t.Errorf("expected loaded false: %s", body)
	}
}

func TestReloadGrid(t *testing.T) {
	deps, src := loadedDeps(t)
	app := setupApp(deps)

	src.grid = uniformGrid(t, -300)
	resp, _ := app.Test(httptest.NewRequest("POST", "/v1/grid/reload", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	if got := deps.Geoid.Offset(1, 1).Undulation; got != -3 {
		t.Errorf("expected reloaded grid to answer -3 m, got %v", got)
	}

	src.err = &geoid.LoadError{Source: "stub", Size: 10, Err: geoid.ErrTruncated}
	resp, _ = app.Test(httptest.NewRequest("POST", "/v1/grid/reload", nil), -1)
	if resp.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp.Body)
	if apiErr.Code != "bad_gateway" || !strings.Contains(apiErr.Message, "truncated") {
		t.Errorf("unexpected error body %+v", apiErr)
	}
	if !deps.Geoid.Ready() || deps.Geoid.Offset(1, 1).Undulation != -3 {
		t.Error("failed reload must keep serving the previous grid")
	}
}

func TestReloadGrid_BroadcastWithoutNATS(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("POST", "/v1/grid/reload?all=true", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- Health ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(degradedDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}
}

func TestReady(t *testing.T) {
	type readiness struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}

	loaded, _ := loadedDeps(t)
	resp, _ := setupApp(loaded).Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 with grid loaded, got %d", resp.StatusCode)
	}
	var r readiness
	json.NewDecoder(resp.Body).Decode(&r)
	if r.Checks["grid"] != "ok" || r.Checks["nats"] != "not configured" || r.Checks["cache"] != "not configured" {
		t.Errorf("unexpected checks %+v", r.Checks)
	}

	resp, _ = setupApp(degradedDeps()).Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 while degraded, got %d", resp.StatusCode)
	}
	r = readiness{}
	json.NewDecoder(resp.Body).Decode(&r)
	if r.Status != "not ready" || r.Checks["grid"] != "not loaded" {
		t.Errorf("unexpected readiness %+v", r)
	}
}

// ---- Middleware ----

func TestETag_NotModified(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/geoid/offset?lat=1&lon=2", nil), -1)
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak etag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/geoid/offset?lat=1&lon=2", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(degradedDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
}

// ---- GraphQL ----

func TestGraphQL_GeoidOffset(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	body := `{"query":"{ geoidOffset(lat: 10, lon: 20) { undulation_m degraded location { lat lon } } grid { loaded rows cols } }"}`
	resp, _ := app.Test(postJSON("/graphql", body), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			GeoidOffset struct {
				Undulation float64         `json:"undulation_m"`
				Degraded   bool            `json:"degraded"`
				Location   domain.GeoPoint `json:"location"`
			} `json:"geoidOffset"`
			Grid struct {
				Loaded bool `json:"loaded"`
				Rows   int  `json:"rows"`
				Cols   int  `json:"cols"`
			} `json:"grid"`
		} `json:"data"`
		Errors []map[string]interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if result.Data.GeoidOffset.Undulation != 15 || result.Data.GeoidOffset.Degraded {
		t.Errorf("unexpected offset %+v", result.Data.GeoidOffset)
	}
	if result.Data.GeoidOffset.Location.Lon != 20 {
		t.Errorf("unexpected location %+v", result.Data.GeoidOffset.Location)
	}
	if !result.Data.Grid.Loaded || result.Data.Grid.Rows != geoid.Rows || result.Data.Grid.Cols != geoid.Cols {
		t.Errorf("unexpected grid %+v", result.Data.Grid)
	}
}

func TestGraphQL_ConvertHeight(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	body := `{"query":"{ convertHeight(lat: 1, lon: 2, h: 20, from: \"orthometric\") { result_m to } }"}`
	resp, _ := app.Test(postJSON("/graphql", body), -1)

	var result struct {
		Data struct {
			ConvertHeight struct {
				Result float64 `json:"result_m"`
				To     string  `json:"to"`
			} `json:"convertHeight"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Data.ConvertHeight.Result != 35 || result.Data.ConvertHeight.To != "ellipsoidal" {
		t.Errorf("unexpected conversion %+v", result.Data.ConvertHeight)
	}
}

func TestGraphQL_OutOfRange(t *testing.T) {
	deps, _ := loadedDeps(t)
	app := setupApp(deps)

	resp, _ := app.Test(postJSON("/graphql", `{"query":"{ geoidOffset(lat: 95, lon: 0) { undulation_m } }"}`), -1)

	var result struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "lat must be within") {
		t.Errorf("expected range error, got %+v", result.Errors)
	}
}

func TestGraphQL_ReloadGrid(t *testing.T) {
	deps, src := loadedDeps(t)
	app := setupApp(deps)

	src.grid = uniformGrid(t, 100)
	resp, _ := app.Test(postJSON("/graphql", `{"query":"mutation { reloadGrid { loaded min_cm } }"}`), -1)

	var result struct {
		Data struct {
			ReloadGrid struct {
				Loaded bool `json:"loaded"`
				MinCM  int  `json:"min_cm"`
			} `json:"reloadGrid"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if !result.Data.ReloadGrid.Loaded || result.Data.ReloadGrid.MinCM != 100 {
		t.Errorf("unexpected reload result %+v", result.Data.ReloadGrid)
	}
}

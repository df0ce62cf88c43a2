package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type listQuery struct {
	Instrument string `query:"instrument" validate:"required"`
	Limit      int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/?instrument=EUR_USD", "")
	var q listQuery
	if errs := ReadAndValidateRequest(c, &q); errs != nil {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if q.Limit != 50 || q.Instrument != "EUR_USD" {
		t.Errorf("got %+v", q)
	}
}

func TestReadAndValidateRequestErrors(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/?limit=5000", "")
	var q listQuery
	errs, ok := ReadAndValidateRequest(c, &q).([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("expected two validation errors, got %+v", errs)
	}
	codes := map[string]bool{}
	for _, e := range errs {
		codes[e.Code] = true
	}
	if !codes["ERR_REQUIRED"] || !codes["ERR_LTE"] {
		t.Errorf("unexpected codes %v", codes)
	}
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	err := NotFoundErrorf("no levels for %s", "EUR_USD").WithError(errors.New("cold start"))
	if e := AppErrorResponse(c, err); e != nil {
		t.Fatal(e)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != http.StatusNotFound || len(body.Data) != 1 || body.Data[0].Code != "ERR_NOT_FOUND" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAppErrorResponseUnknownError(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	_ = AppErrorResponse(c, errors.New("plain"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

type symbolQuery struct {
	Instrument string `query:"instrument" validate:"required,instrument"`
}

func TestInstrumentValidation(t *testing.T) {
	for target, ok := range map[string]bool{
		"/?instrument=EUR_USD":                            true,
		"/?instrument=XAU/USD":                            true,
		"/?instrument=BTC-PERP":                           true,
		"/?instrument=EUR__USD":                           false,
		"/?instrument=EUR%20USD":                          false,
		"/?instrument=_EUR":                               false,
		"/?instrument=ABCDEFGHIJKLMNOPQRSTUVWXYZ_0123456": false,
	} {
		c, _ := newContext(http.MethodGet, target, "")
		var q symbolQuery
		errs := ReadAndValidateRequest(c, &q)
		if (errs == nil) != ok {
			t.Errorf("%s: got %+v", target, errs)
			continue
		}
		if ok {
			continue
		}
		verrs := errs.([]ValidationError)
		if len(verrs) != 1 || verrs[0].Code != "ERR_INSTRUMENT" || verrs[0].Field != "instrument" {
			t.Errorf("%s: unexpected %+v", target, verrs)
		}
	}
}

type barsBody struct {
	Bars []struct {
		Close float64 `json:"close" validate:"gt=0"`
	} `json:"bars" validate:"required,min=1,dive"`
}

func TestValidationErrorsUseWireNames(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"bars":[{"close":1.1},{"close":0}]}`)
	var b barsBody
	errs, ok := ReadAndValidateRequest(c, &b).([]ValidationError)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected one error, got %+v", errs)
	}
	if errs[0].Field != "bars[1].close" || errs[0].Message != "bars[1].close must be greater than 0" {
		t.Errorf("unexpected %+v", errs[0])
	}
}

func TestMalformedBody(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"bars":`)
	var b barsBody
	errs, ok := ReadAndValidateRequest(c, &b).([]ValidationError)
	if !ok || len(errs) != 1 || errs[0].Code != "ERR_MALFORMED" {
		t.Errorf("unexpected %+v", errs)
	}
}

type routes struct{ path string }

func (r *routes) RegisterRoutes(e *echo.Echo) {
	e.GET(r.path, func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func TestRegisterAllSkipsDisabledHandlers(t *testing.T) {
	e := echo.New()
	var disabled *routes
	n := registerAll(e, []Handler{&routes{path: "/a"}, disabled, nil, HandlerFunc(func(e *echo.Echo) {
		e.GET("/b", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	})})
	if n != 2 {
		t.Fatalf("mounted %d handlers", n)
	}
	for _, p := range []string{"/a", "/b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", p, rec.Code)
		}
	}
}

func TestServerMountsMetrics(t *testing.T) {
	s := NewServer([]Handler{&routes{path: "/a"}}, WithMetricsPath("/metrics"), WithCORS(true, "https://desk.example.com"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(echo.HeaderOrigin, "https://other.example.com")
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Error("foreign origin got CORS headers")
	}
}

package clickhouse

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "market",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  90 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch:9000" || u.Path != "/market" {
		t.Errorf("unexpected dsn %q", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Errorf("password not escaped correctly: %q", dsn)
	}
	q := u.Query()
	if q.Get("max_execution_time") != "90" || q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Errorf("missing settings in %q", dsn)
	}
	if q.Get("dial_timeout") != "5s" {
		t.Errorf("dial_timeout = %q", q.Get("dial_timeout"))
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "d", User: "u", UseHTTP: true})
	if !strings.HasPrefix(dsn, "http://") {
		t.Errorf("expected http scheme, got %q", dsn)
	}
	if strings.Contains(dsn, "async_insert") {
		t.Errorf("async insert must be off by default: %q", dsn)
	}
}

func TestSchemaQualifiesDatabase(t *testing.T) {
	stmts := Schema("market")
	if len(stmts) != 3 {
		t.Fatalf("got %d statements", len(stmts))
	}
	for _, s := range stmts[1:] {
		if !strings.Contains(s, "market.") {
			t.Errorf("table not qualified: %s", s)
		}
	}
}

func TestClientOptions(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.internal"),
		WithPort(0),
		WithDatabase(""),
		WithCredentials("", "secret"),
		WithPool(4, 8, 0),
		WithTimeouts(0, time.Minute),
		WithAsyncInsert(false, true),
	} {
		opt(cfg)
	}
	if cfg.Addr() != "ch.internal:9000" || cfg.Database != "market" || cfg.User != "default" || cfg.Password != "secret" {
		t.Errorf("unexpected connection settings %+v", cfg)
	}
	if cfg.MaxOpenConns != 4 || cfg.MaxIdleConns != 4 || cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("pool = %d/%d/%s", cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	}
	if cfg.DialTimeout != 5*time.Second || cfg.ReadTimeout != time.Minute {
		t.Errorf("timeouts = %s/%s", cfg.DialTimeout, cfg.ReadTimeout)
	}
	if cfg.WaitForAsync {
		t.Error("wait_for_async_insert without async_insert")
	}
}

func TestAddrBracketsIPv6(t *testing.T) {
	cfg := ClientConfig{Host: "::1", Port: 9000}
	if got := cfg.Addr(); got != "[::1]:9000" {
		t.Errorf("addr = %q", got)
	}
}

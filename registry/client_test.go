package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// newV3Server serves a minimal v3 feed with a service index and a flat container.
func newV3Server(t *testing.T, packages map[string][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch {
		case r.URL.Path == "/v3/index.json":
			fmt.Fprintf(w, `{"version":"3.0.0","resources":[
				{"@id":"%s/search","@type":"SearchQueryService"},
				{"@id":"%s/flat/","@type":"PackageBaseAddress/3.0.0"}]}`, server.URL, server.URL)
		case strings.HasPrefix(r.URL.Path, "/flat/") && strings.HasSuffix(r.URL.Path, "/index.json"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/flat/"), "/index.json")
			versions, ok := packages[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{"versions":["%s"]}`, strings.Join(versions, `","`))
		case strings.HasSuffix(r.URL.Path, ".nuspec"):
			parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/flat/"), "/")
			fmt.Fprintf(w, `<package><metadata><id>%s</id><version>%s</version></metadata></package>`, parts[0], parts[1])
		case strings.HasSuffix(r.URL.Path, ".nupkg"):
			_, _ = w.Write([]byte("PK-archive"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestNewClient_BaseAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://example.com/flat/", "https://example.com/flat"},
		{"https://example.com/flat", "https://example.com/flat"},
	}
	for _, tt := range tests {
		c := NewClient(tt.input)
		got, err := c.BaseAddress(context.Background())
		if err != nil {
			t.Fatalf("BaseAddress() error = %v", err)
		}
		if got != tt.expected {
			t.Errorf("NewClient(%q).BaseAddress() = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNewClient_WithHTTPClient(t *testing.T) {
	custom := &http.Client{Timeout: 5 * time.Second}
	c := NewClient("https://example.com", WithHTTPClient(custom))
	if c.client != custom || c.download != custom {
		t.Error("Client should use custom HTTP client")
	}
}

func TestWithTimeout(t *testing.T) {
	c := NewClient("https://example.com", WithTimeout(3*time.Second))
	if c.client.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", c.client.Timeout)
	}
	c = NewClient("https://example.com", WithTimeout(-1))
	if c.client.Timeout != DefaultRequestTimeout {
		t.Errorf("negative timeout not reset: %v", c.client.Timeout)
	}
}

func TestServiceIndexDiscovery(t *testing.T) {
	server, _ := newV3Server(t, nil)
	c := NewClient(server.URL + "/v3/index.json")

	base, err := c.BaseAddress(context.Background())
	if err != nil {
		t.Fatalf("BaseAddress() error = %v", err)
	}
	if base != server.URL+"/flat" {
		t.Errorf("BaseAddress() = %q, want %q", base, server.URL+"/flat")
	}
}

func TestServiceIndexWithoutFlatContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"3.0.0","resources":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL + "/index.json").ListVersions(context.Background(), "A")
	if err == nil || !strings.Contains(err.Error(), PackageBaseAddressType) {
		t.Errorf("expected missing resource error, got %v", err)
	}
}

func TestListVersions(t *testing.T) {
	server, requests := newV3Server(t, map[string][]string{
		"newtonsoft.json": {"12.0.1", "13.0.1", "9.0.1", "not-a-version", "13.0.2-beta1"},
	})
	c := NewClient(server.URL + "/v3/index.json")
	ctx := context.Background()

	versions, err := c.ListVersions(ctx, "Newtonsoft.Json")
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	want := []string{"9.0.1", "12.0.1", "13.0.1", "13.0.2-beta1"}
	if len(versions) != len(want) {
		t.Fatalf("ListVersions() = %v, want %v", versions, want)
	}
	for i, v := range versions {
		if v.String() != want[i] {
			t.Errorf("versions[%d] = %s, want %s", i, v, want[i])
		}
	}

	before := requests.Load()
	if _, err := c.ListVersions(ctx, "NEWTONSOFT.JSON"); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != before {
		t.Error("second ListVersions() should be served from cache")
	}

	c.ClearCache()
	if _, err := c.ListVersions(ctx, "newtonsoft.json"); err != nil {
		t.Fatal(err)
	}
	if requests.Load() == before {
		t.Error("ClearCache() did not drop cached versions")
	}
}

func TestListVersionsNotFound(t *testing.T) {
	server, _ := newV3Server(t, nil)
	_, err := NewClient(server.URL+"/v3/index.json").ListVersions(context.Background(), "Missing")

	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	var fe *FeedError
	if !errors.As(err, &fe) || fe.PackageID != "Missing" || fe.StatusCode != http.StatusNotFound {
		t.Errorf("FeedError = %+v", fe)
	}
}

func TestGetNuspecAndOpenPackage(t *testing.T) {
	server, requests := newV3Server(t, map[string][]string{"a": {"1.0.0"}})
	c := NewClient(server.URL + "/flat/")
	ctx := context.Background()
	v := version.MustParse("1.0.0")

	data, err := c.GetNuspec(ctx, "A", v)
	if err != nil {
		t.Fatalf("GetNuspec() error = %v", err)
	}
	if !strings.Contains(string(data), "<id>a</id>") {
		t.Errorf("GetNuspec() = %s", data)
	}
	before := requests.Load()
	if _, err := c.GetNuspec(ctx, "a", v); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != before {
		t.Error("GetNuspec() should be cached")
	}

	rc, err := c.OpenPackage(ctx, "A", v)
	if err != nil {
		t.Fatalf("OpenPackage() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "PK-archive" {
		t.Errorf("OpenPackage() body = %q", body)
	}
}

func TestFeedErrorUnwrap(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
	}
	for _, tt := range tests {
		err := &FeedError{StatusCode: tt.status, PackageID: "A", URL: "u"}
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: errors.Is(%v) = false", tt.status, tt.want)
		}
	}
	if errors.Is(&FeedError{StatusCode: 500}, ErrNotFound) {
		t.Error("500 should not be not-found")
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(server.URL+"/flat").ListVersions(ctx, "a"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

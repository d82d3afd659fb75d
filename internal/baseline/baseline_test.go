// Tests for the git and URL baseline sources, covering the absent-baseline
// path and every BaselineUnparseable cause.

package baseline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/semsync/internal/vcs"
	"tools.zach/dev/semsync/internal/vcs/vcstest"
)

// ///////////////////////////////////////////////
// Git source
// ///////////////////////////////////////////////

func TestGitResolve(t *testing.T) {
	tests := []struct {
		name    string
		fake    *vcstest.Fake
		want    string // "" means nil baseline
		wantErr error
	}{
		{
			name: "version at merge base",
			fake: &vcstest.Fake{
				Bases: map[string]string{"origin/main": "abc123"},
				Files: map[string]string{"abc123:alire.toml": "name = \"x\"\nversion = \"1.2.0\"\n"},
			},
			want: "1.2.0",
		},
		{
			name: "no merge base",
			fake: &vcstest.Fake{},
			want: "",
		},
		{
			name: "manifest missing at merge base",
			fake: &vcstest.Fake{
				Bases: map[string]string{"origin/main": "abc123"},
			},
			wantErr: ErrUnparseable,
		},
		{
			name: "no version key",
			fake: &vcstest.Fake{
				Bases: map[string]string{"origin/main": "abc123"},
				Files: map[string]string{"abc123:alire.toml": "name = \"x\"\n"},
			},
			wantErr: ErrUnparseable,
		},
		{
			name: "invalid version",
			fake: &vcstest.Fake{
				Bases: map[string]string{"origin/main": "abc123"},
				Files: map[string]string{"abc123:alire.toml": "version = \"one\"\n"},
			},
			wantErr: ErrUnparseable,
		},
		{
			name:    "backend unavailable",
			fake:    &vcstest.Fake{Err: vcs.ErrUnavailable},
			wantErr: vcs.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Git{Backend: tt.fake, Trunk: "origin/main", Manifest: "alire.toml"}
			got, err := g.Resolve(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tt.want == "" {
				if got != nil {
					t.Fatalf("baseline = %v, want nil", got)
				}
				return
			}
			if got == nil || got.String() != tt.want {
				t.Fatalf("baseline = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestNoneResolve(t *testing.T) {
	v, err := None{}.Resolve(context.Background())
	if v != nil || err != nil {
		t.Fatalf("None.Resolve = (%v, %v), want (nil, nil)", v, err)
	}
}

// ///////////////////////////////////////////////
// URL source
// ///////////////////////////////////////////////

func testClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	return c
}

func TestURLResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok/alire.toml":
			w.Write([]byte("name = \"x\"\nversion = \"2.1.0\"\n"))
		case "/bad/alire.toml":
			w.Write([]byte("name = \"x\"\n"))
		case "/boom/alire.toml":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	v, err := (&URL{Location: srv.URL + "/ok/alire.toml", Client: testClient()}).Resolve(ctx)
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	if v == nil || v.String() != "2.1.0" {
		t.Fatalf("ok: baseline = %v, want 2.1.0", v)
	}

	v, err = (&URL{Location: srv.URL + "/missing/alire.toml", Client: testClient()}).Resolve(ctx)
	if err != nil || v != nil {
		t.Fatalf("missing: got (%v, %v), want (nil, nil)", v, err)
	}

	_, err = (&URL{Location: srv.URL + "/bad/alire.toml", Client: testClient()}).Resolve(ctx)
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("bad: err = %v, want ErrUnparseable", err)
	}

	_, err = (&URL{Location: srv.URL + "/boom/alire.toml", Client: testClient()}).Resolve(ctx)
	if err == nil {
		t.Fatal("boom: expected error for 403")
	}
}

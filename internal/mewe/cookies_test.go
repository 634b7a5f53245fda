package mewe

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJarFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write cookie file: %v", err)
	}
	return path
}

func TestLoadJar(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).Unix()
	content := "# Netscape HTTP Cookie File\n" +
		"# This is a comment\n" +
		"\n" +
		fmt.Sprintf(".mewe.com\tTRUE\t/\tTRUE\t%d\taccess-token\ttok123\n", future) +
		".mewe.com\tTRUE\t/\tTRUE\t0\tcsrf-token\tcsrf456\n" +
		"#HttpOnly_.mewe.com\tTRUE\t/\tTRUE\t0\trefresh-token\tref789\n" +
		"cdn.mewe.com\tFALSE\t/assets\tFALSE\t0\tcdn-exp\tabc\n"

	jar, err := LoadJar(writeJarFile(t, content))
	if err != nil {
		t.Fatalf("LoadJar() error = %v", err)
	}

	tests := []struct {
		name   string
		domain string
		cookie string
		want   string
	}{
		{"domain cookie", "mewe.com", "access-token", "tok123"},
		{"session cookie", "mewe.com", "csrf-token", "csrf456"},
		{"httponly prefixed", "mewe.com", "refresh-token", "ref789"},
		{"host-only cookie", "cdn.mewe.com", "cdn-exp", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ck := jar.Get(tt.domain, tt.cookie)
			if ck == nil {
				t.Fatalf("Get(%q, %q) = nil", tt.domain, tt.cookie)
			}
			if ck.Value != tt.want {
				t.Errorf("value = %q, want %q", ck.Value, tt.want)
			}
		})
	}

	// Expiry of the access token must survive the round trip
	exp, ok := jar.Expiry("mewe.com", "access-token")
	if !ok || exp.Unix() != future {
		t.Errorf("Expiry() = %v, %v; want %d", exp, ok, future)
	}
}

func TestLoadJarMalformed(t *testing.T) {
	_, err := LoadJar(writeJarFile(t, "not\ta\tcookie\n"))
	if err == nil {
		t.Fatal("LoadJar() expected error for malformed line")
	}
}

func TestJarCookiesMatching(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()
	content := fmt.Sprintf(
		".mewe.com\tTRUE\t/\tTRUE\t%d\taccess-token\ttok\n"+
			".mewe.com\tTRUE\t/\tTRUE\t%d\tdead-token\told\n"+
			"mewe.com\tFALSE\t/\tFALSE\t0\tplain\tval\n"+
			".mewe.com\tTRUE\t/api\tFALSE\t0\tscoped\tapi-only\n",
		future, past)

	jar, err := LoadJar(writeJarFile(t, content))
	if err != nil {
		t.Fatalf("LoadJar() error = %v", err)
	}

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"https root", "https://mewe.com/", []string{"access-token", "plain"}},
		{"http drops secure", "http://mewe.com/", []string{"plain"}},
		{"subdomain skips host-only", "https://cdn.mewe.com/x", []string{"access-token"}},
		{"api path adds scoped", "https://mewe.com/api/v2/me/info", []string{"access-token", "plain", "scoped"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _ := url.Parse(tt.url)
			got := jar.Cookies(u)
			var names []string
			for _, c := range got {
				names = append(names, c.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("Cookies(%s) = %v, want %v", tt.url, names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("Cookies(%s)[%d] = %q, want %q", tt.url, i, names[i], tt.want[i])
				}
			}
		})
	}
}

func TestJarSetCookiesAndSave(t *testing.T) {
	path := writeJarFile(t, ".mewe.com\tTRUE\t/\tTRUE\t0\taccess-token\told\n")
	jar, err := LoadJar(path)
	if err != nil {
		t.Fatalf("LoadJar() error = %v", err)
	}

	u, _ := url.Parse("https://mewe.com/api/v3/auth/identify")
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	jar.SetCookies(u, []*http.Cookie{
		{Name: "access-token", Value: "rotated", Path: "/", Domain: ".mewe.com", Expires: expires},
		{Name: "trace-id", Value: "t1", Path: "/"},
	})

	if got := jar.Get("mewe.com", "access-token"); got == nil || got.Value != "rotated" {
		t.Fatalf("Get(access-token) = %+v, want rotated", got)
	}

	if err := jar.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := LoadJar(path)
	if err != nil {
		t.Fatalf("LoadJar() after save error = %v", err)
	}
	ck := reloaded.Get("mewe.com", "access-token")
	if ck == nil || ck.Value != "rotated" {
		t.Fatalf("reloaded access-token = %+v, want rotated", ck)
	}
	if !ck.Expires.Equal(expires) {
		t.Errorf("reloaded expiry = %v, want %v", ck.Expires, expires)
	}
	// Host-only Set-Cookie entries stick to the host they came from
	if got := reloaded.Get("mewe.com", "trace-id"); got == nil || got.Value != "t1" {
		t.Errorf("reloaded trace-id = %+v, want t1", got)
	}
}

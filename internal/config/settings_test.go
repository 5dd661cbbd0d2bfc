package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultSettingsValid(t *testing.T) {
	cfg := Default()

	if cfg.Storage != StorageFile {
		t.Fatalf("default storage = %q, want file", cfg.Storage)
	}
	if _, ok := cfg.PortGroups["ssh"]; !ok {
		t.Fatal("expected default ssh port group")
	}

	policy := cfg.Policy()
	reason, err := policy.ResolveReason("", "ssh")
	if err != nil {
		t.Fatalf("ResolveReason returned error %v", err)
	}
	if reason != "ssh brute force" {
		t.Fatalf("ssh default reason = %q, want ssh brute force", reason)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`{"storage":"file","colour":"blue"}`))
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Fatalf("Parse error = %v, want unknown field error", err)
	}
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"bad storage", `{"storage":"s3"}`, "unknown backend"},
		{"bad port", `{"port_groups":{"x":{"ports":[70000]}}}`, "bad port"},
		{"empty ports", `{"port_groups":{"x":{"ports":[]}}}`, "no ports"},
		{"reason index", `{"reasons":["a"],"port_groups":{"x":{"ports":[1],"reason":1}}}`, "out of range"},
		{"negative days", `{"default_days":-1}`, "default_days"},
		{"lookup placeholder", `{"lookup":{"url":"http://example.com/"}}`, "{ip}"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Parse(%s) error = %v, want containing %q", tc.doc, err, tc.want)
			}
		})
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"country_days":{" xx ":10}}`))
	if err != nil {
		t.Fatalf("Parse returned error %v", err)
	}
	if cfg.DataFile != "data/blocklist.json" {
		t.Fatalf("DataFile = %q, want default", cfg.DataFile)
	}
	if cfg.Lookup.Timeout().Seconds() != 5 {
		t.Fatalf("lookup timeout = %s, want 5s", cfg.Lookup.Timeout())
	}
	if got := cfg.Policy().CountryDays["XX"]; got != 10 {
		t.Fatalf("CountryDays[XX] = %d, want 10", got)
	}
}

func TestReadSettingsCreatesDefault(t *testing.T) {
	orig := GetConfig()
	t.Cleanup(func() { SetConfig(orig) })

	path := filepath.Join(t.TempDir(), "conf", "settings.json")
	if err := ReadSettings(path); err != nil {
		t.Fatalf("ReadSettings returned error %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default settings file not written: %v", err)
	}
	if got := GetConfig().ExportFile; got != "data/blocklist.deny" {
		t.Fatalf("ExportFile = %q, want data/blocklist.deny", got)
	}
}

func TestSettingsPathEnv(t *testing.T) {
	t.Setenv("FWBLOCK_SETTINGS", "/tmp/custom.json")
	if got := SettingsPath(); got != "/tmp/custom.json" {
		t.Fatalf("SettingsPath returned %s, want /tmp/custom.json", got)
	}
}

package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLoadOverridesFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigEnv, "")
	t.Setenv("SHX_CWD", dir)
	t.Setenv("SHX_VERBOSE", "yes")
	t.Setenv("SHX_QUIET", "off")
	t.Setenv("SHX_TIMEOUT", "2m")
	t.Setenv("SHX_KILL_SIGNAL", "SIGKILL")
	t.Setenv("SHX_PREFIX", "set -e; ")
	t.Setenv("SHX_UNKNOWN", "ignored")

	o, err := LoadOverrides(afero.NewMemMapFs())
	if err != nil {
		t.Fatalf("LoadOverrides() unexpected error: %v", err)
	}

	if o.Cwd == nil || *o.Cwd != dir {
		t.Errorf("Cwd = %v, want %q", o.Cwd, dir)
	}
	if o.Verbose == nil || !*o.Verbose {
		t.Errorf("Verbose = %v, want true", o.Verbose)
	}
	if o.Quiet == nil || *o.Quiet {
		t.Errorf("Quiet = %v, want false", o.Quiet)
	}
	if o.Timeout == nil || *o.Timeout != "2m" {
		t.Errorf("Timeout = %v, want 2m", o.Timeout)
	}
	if o.KillSignal == nil || *o.KillSignal != "SIGKILL" {
		t.Errorf("KillSignal = %v, want SIGKILL", o.KillSignal)
	}
	if o.Prefix == nil || *o.Prefix != "set -e; " {
		t.Errorf("Prefix = %v, want untrimmed %q", o.Prefix, "set -e; ")
	}
	if o.Shell != nil {
		t.Errorf("Shell = %q, want unset", *o.Shell)
	}
}

func TestLoadOverridesFileThenEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("/etc", "shx.yaml")
	if err := afero.WriteFile(fs, path, []byte("shell: /bin/zsh\nquiet: true\ntimeout: 5s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigEnv, path)
	t.Setenv("SHX_TIMEOUT", "250ms")

	o, err := LoadOverrides(fs)
	if err != nil {
		t.Fatalf("LoadOverrides() unexpected error: %v", err)
	}
	if o.Shell == nil || *o.Shell != "/bin/zsh" {
		t.Errorf("Shell = %v, want /bin/zsh", o.Shell)
	}
	if o.Quiet == nil || !*o.Quiet {
		t.Errorf("Quiet = %v, want true", o.Quiet)
	}
	if o.Timeout == nil || *o.Timeout != "250ms" {
		t.Errorf("Timeout = %v, want env value 250ms", o.Timeout)
	}
}

func TestLoadOverridesErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/bad.yaml", []byte("colour: red\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigEnv, "/missing.yaml")
	if _, err := LoadOverrides(fs); err == nil {
		t.Fatalf("expected error for a missing config file")
	}

	t.Setenv(ConfigEnv, "/bad.yaml")
	if _, err := LoadOverrides(fs); err == nil {
		t.Fatalf("expected error for an unknown config key")
	}

	t.Setenv(ConfigEnv, "")
	t.Setenv("SHX_VERBOSE", "maybe")
	if _, err := LoadOverrides(fs); err == nil {
		t.Fatalf("expected error for a non-boolean verbose")
	}

	t.Setenv("SHX_VERBOSE", "")
	t.Setenv("SHX_TIMEOUT", "soon")
	_, err := LoadOverrides(fs)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("LoadOverrides() error = %v, want invalid timeout", err)
	}
}

func TestValidate(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name    string
		in      Overrides
		wantErr string
	}{
		{name: "empty", in: Overrides{}},
		{name: "signal", in: Overrides{KillSignal: str("SIGINT")}},
		{name: "lowercase signal", in: Overrides{TimeoutSignal: str("sigint")}, wantErr: "timeoutSignal"},
		{name: "missing dir", in: Overrides{Cwd: str("/definitely/not/here")}, wantErr: "cwd"},
		{name: "empty shell inherits", in: Overrides{Shell: str("")}},
		{name: "bad duration", in: Overrides{Timeout: str("-1s")}, wantErr: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	t.Run("PreferLocalDirs", func(t *testing.T) {
		str := func(s string) *string { return &s }
		if dirs := (Overrides{}).PreferLocalDirs("/work"); dirs != nil {
			t.Errorf("unset PreferLocalDirs = %v, want nil", dirs)
		}
		if dirs := (Overrides{PreferLocal: str("true")}).PreferLocalDirs("/work"); len(dirs) != 1 || dirs[0] != "/work" {
			t.Errorf("PreferLocalDirs(true) = %v, want [/work]", dirs)
		}
		if dirs := (Overrides{PreferLocal: str("no")}).PreferLocalDirs("/work"); dirs != nil {
			t.Errorf("PreferLocalDirs(no) = %v, want nil", dirs)
		}
		list := "/a" + string(filepath.ListSeparator) + " " + string(filepath.ListSeparator) + "/b"
		dirs := (Overrides{PreferLocal: &list}).PreferLocalDirs("/work")
		if len(dirs) != 2 || dirs[0] != "/a" || dirs[1] != "/b" {
			t.Errorf("PreferLocalDirs(list) = %v, want [/a /b]", dirs)
		}
	})

	t.Run("ParseDuration", func(t *testing.T) {
		cases := map[string]time.Duration{
			"250":   250 * time.Millisecond,
			"250ms": 250 * time.Millisecond,
			"5s":    5 * time.Second,
			"2m":    2 * time.Minute,
			"1h30m": 90 * time.Minute,
			"1.5s":  1500 * time.Millisecond,
		}
		for in, want := range cases {
			got, ok := ParseDuration(in)
			if !ok || got != want {
				t.Errorf("ParseDuration(%q) = %v, %v, want %v", in, got, ok, want)
			}
		}
		for _, in := range []string{"", "soon", "-5s"} {
			if _, ok := ParseDuration(in); ok {
				t.Errorf("ParseDuration(%q) accepted, want rejection", in)
			}
		}
	})

	t.Run("toCamelCase", func(t *testing.T) {
		if got := toCamelCase("TIMEOUT_SIGNAL"); got != "timeoutSignal" {
			t.Errorf("toCamelCase() = %q, want timeoutSignal", got)
		}
	})

	t.Run("parseBool", func(t *testing.T) {
		if v, ok := parseBool("on"); !ok || !v {
			t.Errorf("parseBool(\"on\") = %v, %v, want true, true", v, ok)
		}
		if _, ok := parseBool(""); ok {
			t.Errorf("parseBool(\"\") accepted, want rejection")
		}
	})
}

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// EnvPrefix starts every environment variable that seeds the defaults.
const EnvPrefix = "SHX_"

// ConfigEnv names the variable pointing at an optional YAML config file.
const ConfigEnv = EnvPrefix + "CONFIG"

// Overrides groups the option values a user can preset from the
// environment or a config file. Nil fields leave the built-in default.
type Overrides struct {
	Cwd           *string `json:"cwd,omitempty" validate:"omitempty,dir"`
	PreferLocal   *string `json:"preferLocal,omitempty"`
	Detached      *bool   `json:"detached,omitempty"`
	Verbose       *bool   `json:"verbose,omitempty"`
	Quiet         *bool   `json:"quiet,omitempty"`
	Timeout       *string `json:"timeout,omitempty" validate:"omitempty,duration"`
	TimeoutSignal *string `json:"timeoutSignal,omitempty" validate:"omitempty,startswith=SIG,uppercase"`
	KillSignal    *string `json:"killSignal,omitempty" validate:"omitempty,startswith=SIG,uppercase"`
	Prefix        *string `json:"prefix,omitempty"`
	Postfix       *string `json:"postfix,omitempty"`
	Shell         *string `json:"shell,omitempty" validate:"omitempty,min=1"`
}

var envKeys = map[string]bool{
	"cwd":           true,
	"preferLocal":   true,
	"detached":      true,
	"verbose":       true,
	"quiet":         true,
	"timeout":       true,
	"timeoutSignal": true,
	"killSignal":    true,
	"prefix":        true,
	"postfix":       true,
	"shell":         true,
}

var durationRe = regexp.MustCompile(`^(\d+)(m?s?)$`)

// LoadOverrides reads the config file named by SHX_CONFIG, if any, then
// layers SHX_* environment variables on top and validates the result.
func LoadOverrides(fs afero.Fs) (Overrides, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	var o Overrides
	if path := strings.TrimSpace(os.Getenv(ConfigEnv)); path != "" {
		loaded, err := LoadFile(fs, path)
		if err != nil {
			return Overrides{}, err
		}
		o = loaded
	}

	if err := o.applyEnv(os.Environ()); err != nil {
		return Overrides{}, err
	}
	if err := o.Validate(); err != nil {
		return Overrides{}, err
	}
	return o, nil
}

// LoadFile parses a YAML config file. Unknown keys are rejected.
func LoadFile(fs afero.Fs, path string) (Overrides, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var o Overrides
	if err := yaml.UnmarshalStrict(raw, &o); err != nil {
		return Overrides{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return o, nil
}

func (o *Overrides) applyEnv(environ []string) error {
	for _, kv := range environ {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || raw == "" || !strings.HasPrefix(name, EnvPrefix) || name == ConfigEnv {
			continue
		}
		key := toCamelCase(strings.TrimPrefix(name, EnvPrefix))
		if !envKeys[key] {
			continue
		}
		value := strings.TrimSpace(raw)

		switch key {
		case "detached", "verbose", "quiet":
			b, ok := parseBool(value)
			if !ok {
				return fmt.Errorf("invalid %s: %q is not a boolean", name, value)
			}
			switch key {
			case "detached":
				o.Detached = &b
			case "verbose":
				o.Verbose = &b
			case "quiet":
				o.Quiet = &b
			}
		case "cwd":
			o.Cwd = &value
		case "preferLocal":
			o.PreferLocal = &value
		case "timeout":
			o.Timeout = &value
		case "timeoutSignal":
			o.TimeoutSignal = &value
		case "killSignal":
			o.KillSignal = &value
		case "prefix":
			o.Prefix = &raw
		case "postfix":
			o.Postfix = &raw
		case "shell":
			o.Shell = &value
		}
	}
	return nil
}

// Validate checks the overrides, naming fields by their json keys.
func (o Overrides) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, ok := ParseDuration(fl.Field().String())
		return ok
	}); err != nil {
		return err
	}

	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid %s: failed %q check", first.Field(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PreferLocalDirs interprets the preferLocal value: "true" means the
// working directory, "false" disables the lookup, anything else is a
// path list.
func (o Overrides) PreferLocalDirs(cwd string) []string {
	if o.PreferLocal == nil {
		return nil
	}
	raw := strings.TrimSpace(*o.PreferLocal)
	if b, ok := parseBool(raw); ok {
		if b {
			return []string{cwd}
		}
		return nil
	}
	var dirs []string
	for _, dir := range filepath.SplitList(raw) {
		if trimmed := strings.TrimSpace(dir); trimmed != "" {
			dirs = append(dirs, trimmed)
		}
	}
	return dirs
}

// ParseDuration accepts "250", "250ms", "5s", "2m" or a Go duration string.
func ParseDuration(raw string) (time.Duration, bool) {
	if m := durationRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		switch m[2] {
		case "s":
			return time.Duration(n) * time.Second, true
		case "m":
			return time.Duration(n) * time.Minute, true
		default:
			return time.Duration(n) * time.Millisecond, true
		}
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func toCamelCase(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '_' || r == '-' })
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func parseBool(raw string) (bool, bool) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		switch strings.ToLower(raw) {
		case "on", "yes":
			return true, true
		case "off", "no":
			return false, true
		}
		return false, false
	}
	return v, true
}

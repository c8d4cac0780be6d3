package widget

import (
	"encoding/binary"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength      = 100
	maxSelectedFields  = 50
	maxFieldPathLength = 512
	maxRefreshInterval = 86400 // one day
	maxURLLength       = 2048

	idPrefix       = "widget-"
	idRandomLength = 7
)

var validDisplayModes = map[DisplayMode]struct{}{
	DisplayCard:  {},
	DisplayTable: {},
	DisplayChart: {},
}

// ValidateNew checks a widget submitted through the creation form.
// It is stricter than ValidateConfig: at least one field must be selected,
// and a streaming widget must carry a usable stream URL.
func ValidateNew(c *Config) error {
	if err := ValidateConfig(c); err != nil {
		return err
	}
	if len(c.SelectedFields) == 0 {
		return invalid("selectedFields", ErrNoFieldsSelected, "")
	}
	if c.UseWebSocket && !IsStreamURL(c.WSURL) {
		return invalid("wsUrl", ErrInvalidStreamURL, "%q is not a ws:// or wss:// URL", c.WSURL)
	}
	return nil
}

// ValidateConfig checks the fields every stored widget must satisfy.
// Imports and templates use it directly; a bad wsUrl is tolerated here and
// corrected when acquisition starts.
func ValidateConfig(c *Config) error {
	if c == nil {
		return invalid("widget", ErrInvalidName, "missing")
	}
	if err := ValidateName(c.Name); err != nil {
		return &ValidationError{Field: "name", Err: err}
	}
	if err := ValidateAPIURL(c.APIURL); err != nil {
		return &ValidationError{Field: "apiUrl", Err: err}
	}
	if c.RefreshInterval < 1 || c.RefreshInterval > maxRefreshInterval {
		return invalid("refreshInterval", ErrInvalidRefreshInterval,
			"%d is outside 1..%d seconds", c.RefreshInterval, maxRefreshInterval)
	}
	if _, ok := validDisplayModes[c.DisplayMode]; !ok {
		return invalid("displayMode", ErrInvalidDisplayMode, "%q", c.DisplayMode)
	}
	if len(c.SelectedFields) > maxSelectedFields {
		return invalid("selectedFields", ErrInvalidField, "at most %d fields", maxSelectedFields)
	}
	for _, f := range c.SelectedFields {
		if strings.TrimSpace(f) == "" || len(f) > maxFieldPathLength {
			return invalid("selectedFields", ErrInvalidField, "%q", f)
		}
	}
	return nil
}

// ValidateName checks a widget display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalidf(ErrInvalidName, "name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return invalidf(ErrInvalidName, "name exceeds %d characters", maxNameLength)
	}
	return nil
}

// ValidateAPIURL checks that raw is an absolute http or https URL.
func ValidateAPIURL(raw string) error {
	if raw == "" {
		return invalidf(ErrInvalidAPIURL, "URL cannot be empty")
	}
	if len(raw) > maxURLLength {
		return invalidf(ErrInvalidAPIURL, "URL exceeds %d characters", maxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalidf(ErrInvalidAPIURL, "%q is not an http:// or https:// URL", raw)
	}
	return nil
}

// IsStreamURL reports whether raw is an absolute ws or wss URL.
func IsStreamURL(raw string) bool {
	if raw == "" || len(raw) > maxURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host != "" && (u.Scheme == "ws" || u.Scheme == "wss")
}

// Normalise trims text fields and fills the display mode and field list
// when they are unset. It never fills refreshInterval; see fillRefresh.
func Normalise(c *Config) {
	c.Name = strings.TrimSpace(c.Name)
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.WSURL = strings.TrimSpace(c.WSURL)
	if c.DisplayMode == "" {
		c.DisplayMode = DisplayCard
	}
	if c.SelectedFields == nil {
		c.SelectedFields = []string{}
	}
}

// fillRefresh sets an unset refresh interval to n, or DefaultRefreshInterval when n is not positive.
func fillRefresh(c *Config, n int) {
	if c.RefreshInterval > 0 {
		return
	}
	if n <= 0 {
		n = DefaultRefreshInterval
	}
	c.RefreshInterval = n
}

// GenerateID returns a new widget id of the form widget-<unix ms>-<random>.
func GenerateID(now time.Time) string {
	return idPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomSuffix()
}

// randomSuffix returns idRandomLength base36 characters drawn from a v4 UUID.
func randomSuffix() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[8:])
	s := strconv.FormatUint(n, 36)
	if len(s) < idRandomLength {
		s = strings.Repeat("0", idRandomLength-len(s)) + s
	}
	return s[len(s)-idRandomLength:]
}

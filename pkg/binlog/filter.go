package binlog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Limits caps the logged bytes of headers and messages
type Limits struct {
	Header  uint64
	Message uint64
}

// Unlimited logs complete headers and messages
var Unlimited = Limits{Header: math.MaxUint64, Message: math.MaxUint64}

// Filter selects the methods to log. The config string is a comma
// separated list of "*", "service/*", "service/method" and
// "-service/method"; each inclusion may carry a "{h:N;m:N}" suffix.
type Filter struct {
	all      *Limits
	services map[string]Limits
	methods  map[string]Limits
	excluded map[string]bool
}

// ParseFilter parses a filter config string
func ParseFilter(config string) (*Filter, error) {
	f := &Filter{
		services: make(map[string]Limits),
		methods:  make(map[string]Limits),
		excluded: make(map[string]bool),
	}
	if strings.TrimSpace(config) == "" {
		return f, nil
	}

	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty entry in binlog filter %q", config)
		}
		if err := f.add(part); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MustParseFilter panics on an invalid config
func MustParseFilter(config string) *Filter {
	f, err := ParseFilter(config)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Filter) add(entry string) error {
	if strings.HasPrefix(entry, "-") {
		name, suffix := splitSuffix(entry[1:])
		if suffix != "" {
			return fmt.Errorf("binlog filter %q: exclusions take no limits", entry)
		}
		service, method, err := splitMethod(name)
		if err != nil {
			return err
		}
		if method == "*" {
			return fmt.Errorf("binlog filter %q: only methods can be excluded", entry)
		}
		full := service + "/" + method
		if _, dup := f.methods[full]; dup || f.excluded[full] {
			return fmt.Errorf("binlog filter: duplicate entry for %s", full)
		}
		f.excluded[full] = true
		return nil
	}

	name, suffix := splitSuffix(entry)
	limits, err := parseLimits(suffix)
	if err != nil {
		return fmt.Errorf("binlog filter %q: %w", entry, err)
	}

	if name == "*" {
		if f.all != nil {
			return fmt.Errorf("binlog filter: duplicate global entry")
		}
		f.all = &limits
		return nil
	}

	service, method, err := splitMethod(name)
	if err != nil {
		return err
	}
	if method == "*" {
		if _, dup := f.services[service]; dup {
			return fmt.Errorf("binlog filter: duplicate entry for %s/*", service)
		}
		f.services[service] = limits
		return nil
	}
	full := service + "/" + method
	if _, dup := f.methods[full]; dup || f.excluded[full] {
		return fmt.Errorf("binlog filter: duplicate entry for %s", full)
	}
	f.methods[full] = limits
	return nil
}

func splitSuffix(s string) (name, suffix string) {
	if i := strings.IndexByte(s, '{'); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func splitMethod(name string) (service, method string, err error) {
	i := strings.LastIndexByte(name, '/')
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("binlog filter: %q is not service/method", name)
	}
	return name[:i], name[i+1:], nil
}

// parseLimits handles "", "{h}", "{h:N}", "{m}", "{m:N}" and "{h:N;m:N}"
func parseLimits(suffix string) (Limits, error) {
	limits := Unlimited
	if suffix == "" {
		return limits, nil
	}
	if !strings.HasPrefix(suffix, "{") || !strings.HasSuffix(suffix, "}") {
		return limits, fmt.Errorf("malformed limits %q", suffix)
	}
	body := suffix[1 : len(suffix)-1]
	parts := strings.Split(body, ";")
	if len(parts) > 2 {
		return limits, fmt.Errorf("malformed limits %q", suffix)
	}

	// "{h}" alone logs only headers and "{m}" alone only messages
	limits = Limits{}
	var seenH, seenM bool
	for _, p := range parts {
		key, val, hasVal := strings.Cut(p, ":")
		n := uint64(math.MaxUint64)
		if hasVal {
			v, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return limits, fmt.Errorf("invalid limit %q", p)
			}
			n = v
		}
		switch {
		case key == "h" && !seenH:
			seenH, limits.Header = true, n
		case key == "m" && !seenM && (len(parts) == 1 || seenH):
			seenM, limits.Message = true, n
		default:
			return limits, fmt.Errorf("malformed limits %q", suffix)
		}
	}
	return limits, nil
}

// Match returns the limits for fullMethod ("/service/method" or
// "service/method") and whether it is logged at all. Exclusions win, then
// the exact method, the service wildcard and finally "*".
func (f *Filter) Match(fullMethod string) (Limits, bool) {
	name := strings.TrimPrefix(fullMethod, "/")
	if f.excluded[name] {
		return Limits{}, false
	}
	if l, ok := f.methods[name]; ok {
		return l, true
	}
	if i := strings.LastIndexByte(name, '/'); i > 0 {
		if l, ok := f.services[name[:i]]; ok {
			return l, true
		}
	}
	if f.all != nil {
		return *f.all, true
	}
	return Limits{}, false
}

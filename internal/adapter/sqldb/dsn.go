package sqldb

import (
	"net/url"
	"sort"
	"strings"

	"mindfulweb/internal/domain"
)

// BaseSchemes are the connection string schemes accepted without configuration.
var BaseSchemes = []string{"postgresql", "postgres", "mysql", "mariadb", "sqlite", "oracle", "mssql"}

// MemorySentinel is the SQLite path that selects an in-memory database.
const MemorySentinel = ":memory:"

// ConnectionDescriptor is a validated connection string.
type ConnectionDescriptor struct {
	// Raw is the input exactly as given.
	Raw       string
	Scheme    string
	Authority string
	Path      string
	Query     string
}

// BaseScheme strips a "+driver" suffix, e.g. "postgresql+asyncpg" -> "postgresql".
func (d ConnectionDescriptor) BaseScheme() string {
	base, _, _ := strings.Cut(d.Scheme, "+")
	return base
}

// String returns the raw connection string.
func (d ConnectionDescriptor) String() string { return d.Raw }

// Redacted returns the connection string with any password masked.
func (d ConnectionDescriptor) Redacted() string {
	u, err := url.Parse(strings.TrimSpace(d.Raw))
	if err != nil {
		return d.Scheme + "://"
	}
	return u.Redacted()
}

// Validator checks connection strings against a fixed set of schemes.
type Validator struct {
	schemes map[string]struct{}
}

// NewValidator accepts BaseSchemes plus any extra scheme variants.
func NewValidator(extra ...string) *Validator {
	v := &Validator{schemes: make(map[string]struct{}, len(BaseSchemes)+len(extra))}
	for _, s := range BaseSchemes {
		v.schemes[s] = struct{}{}
	}
	for _, s := range extra {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			v.schemes[s] = struct{}{}
		}
	}
	return v
}

// Supported returns the accepted schemes in sorted order.
func (v *Validator) Supported() []string {
	out := make([]string, 0, len(v.schemes))
	for s := range v.schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Validate parses raw without connecting. Every failure is a KindConfiguration error.
func (v *Validator) Validate(raw any) (ConnectionDescriptor, error) {
	s, ok := raw.(string)
	if !ok {
		return ConnectionDescriptor{}, configError(domain.ReasonInvalidURLType, "", "", nil)
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ConnectionDescriptor{}, configError(domain.ReasonEmptyURL, "", "", nil)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		if !strings.Contains(trimmed, ":") || strings.HasPrefix(trimmed, ":") {
			return ConnectionDescriptor{}, configError(domain.ReasonMissingScheme, "", "", nil)
		}
		return ConnectionDescriptor{}, configError(domain.ReasonMalformedURL, "", "", err)
	}
	if u.Scheme == "" {
		return ConnectionDescriptor{}, configError(domain.ReasonMissingScheme, "", "", nil)
	}
	if _, ok := v.schemes[u.Scheme]; !ok {
		return ConnectionDescriptor{}, configError(domain.ReasonUnsupportedScheme, u.Scheme, strings.Join(v.Supported(), ", "), nil)
	}

	d := ConnectionDescriptor{
		Raw:    s,
		Scheme: u.Scheme,
		Path:   u.Path,
		Query:  u.RawQuery,
	}
	if u.Opaque != "" {
		d.Path = u.Opaque
	}
	d.Authority = u.Host
	if u.User != nil {
		d.Authority = u.User.String() + "@" + u.Host
	}

	if d.BaseScheme() == "sqlite" && (u.Host != "" || u.User != nil) && d.Path == "" {
		return ConnectionDescriptor{}, configError(domain.ReasonInvalidSQLiteFormat, u.Host, "", nil)
	}
	return d, nil
}

// ParseConnectionString validates raw against BaseSchemes.
func ParseConnectionString(raw string) (ConnectionDescriptor, error) {
	return NewValidator().Validate(raw)
}

func configError(reason domain.Reason, value, detail string, cause error) error {
	return &domain.Error{
		Kind:   domain.KindConfiguration,
		Reason: reason,
		Value:  value,
		Detail: detail,
		Cause:  cause,
	}
}

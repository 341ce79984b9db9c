package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultLocale is the language the admin screens are written in.
const DefaultLocale = "id"

//go:embed locales/*.yaml
var embedded embed.FS

// Bundle holds flattened message catalogs keyed by language.
type Bundle struct {
	dict     map[string]map[string]string
	fallback string
	langs    []string
	matcher  language.Matcher
}

// Default loads the embedded catalogs with fallback as the default language.
func Default(fallback string) (*Bundle, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: embedded locales: %w", err)
	}
	return Load(sub, fallback)
}

// Load reads every <lang>.yaml file at the root of fsys.
func Load(fsys fs.FS, fallback string) (*Bundle, error) {
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	if fallback == "" {
		fallback = DefaultLocale
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}

	b := &Bundle{dict: map[string]map[string]string{}, fallback: fallback}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		lang := strings.ToLower(strings.TrimSuffix(entry.Name(), ".yaml"))
		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", entry.Name(), err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", entry.Name(), err)
		}
		flat := make(map[string]string)
		flatten("", tree, flat)
		b.dict[lang] = flat
	}
	if _, ok := b.dict[fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback locale %s not loaded", fallback)
	}

	b.langs = append(b.langs, fallback)
	for lang := range b.dict {
		if lang != fallback {
			b.langs = append(b.langs, lang)
		}
	}
	sort.Strings(b.langs[1:])

	tags := make([]language.Tag, 0, len(b.langs))
	for _, lang := range b.langs {
		tags = append(tags, language.Make(lang))
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, val := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := val.(type) {
		case map[string]any:
			flatten(full, v, out)
		case string:
			out[full] = v
		case nil:
			out[full] = ""
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() string { return b.fallback }

// Supported lists loaded languages, fallback first.
func (b *Bundle) Supported() []string {
	return append([]string(nil), b.langs...)
}

// Has reports whether lang has a catalog.
func (b *Bundle) Has(lang string) bool {
	_, ok := b.dict[strings.ToLower(strings.TrimSpace(lang))]
	return ok
}

// T returns the translation for key in lang, falling back to the default
// language and finally the key itself. Args are applied with fmt.Sprintf.
func (b *Bundle) T(lang, key string, args ...any) string {
	msg, ok := b.lookup(lang, key)
	if !ok {
		msg, ok = b.lookup(b.fallback, key)
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	m, ok := b.dict[lang]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// Resolve chooses the best supported language for an Accept-Language header.
func (b *Bundle) Resolve(acceptLang string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	_, idx, confidence := b.matcher.Match(prefs...)
	if confidence == language.No || idx < 0 || idx >= len(b.langs) {
		return b.fallback
	}
	return b.langs[idx]
}

// Localizer binds a bundle to one language.
type Localizer struct {
	bundle *Bundle
	lang   string
}

// NewLocalizer returns a Localizer for lang.
func NewLocalizer(bundle *Bundle, lang string) Localizer {
	return Localizer{bundle: bundle, lang: lang}
}

// Lang returns the bound language, or the default when unbound.
func (l Localizer) Lang() string {
	if l.lang == "" {
		return DefaultLocale
	}
	return l.lang
}

// T translates key. An unbound Localizer returns the key.
func (l Localizer) T(key string, args ...any) string {
	if l.bundle == nil {
		if len(args) > 0 {
			return fmt.Sprintf(key, args...)
		}
		return key
	}
	return l.bundle.T(l.lang, key, args...)
}

type localizerKey struct{}

// WithLocalizer stores l on ctx.
func WithLocalizer(ctx context.Context, l Localizer) context.Context {
	return context.WithValue(ctx, localizerKey{}, l)
}

// FromContext returns the request Localizer, or an unbound one.
func FromContext(ctx context.Context) Localizer {
	if ctx == nil {
		return Localizer{}
	}
	if l, ok := ctx.Value(localizerKey{}).(Localizer); ok {
		return l
	}
	return Localizer{}
}

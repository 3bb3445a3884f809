package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

const (
	DefaultDocumentBaseURL = "https://www.bane.dk/temp/FileFetch/RouteInformationFolder/La"
	DefaultProductLabel    = "Banedanmark LA"
	DefaultTemplateId      = 9
	DefaultTimezone        = "Europe/Copenhagen"
	DefaultCutoff          = "14:00"
	DefaultOutputDir       = "output"
)

// defaultRoutes are provisioned when LA_ROUTES is not set.
var defaultRoutes = []Route{
	{RouteId: 24, DisplayName: "Århus H - Aalborg"},
	{RouteId: 25, DisplayName: "Aalborg - Lindholm"},
}

var ErrNoRoutes = errors.New("no LA routes configured")

// Route is a rail segment with a published LA document.
type Route struct {
	RouteId     int    `json:"routeId" validate:"gt=0"`
	DisplayName string `json:"displayName" validate:"required,max=250"`
}

// Settings is the static configuration of the provisioning job, loaded once at startup.
type Settings struct {
	Routes []Route `validate:"required,min=1,dive"`

	// Daily cutoff in Location; after it the window moves one day forward.
	CutoffHour   int            `validate:"min=0,max=23"`
	CutoffMinute int            `validate:"min=0,max=59"`
	Location     *time.Location `validate:"required"`

	TemplateId   int          `validate:"gt=0"`
	ProductLabel string       `validate:"required"`
	Locale       language.Tag `validate:"-"`

	DocumentBaseURL string `validate:"required,url"`
	OutputDir       string `validate:"required"`

	FormsAPIBaseURL string `validate:"required,url"`
	FormsAPIKey     string
	FormsAPIKeyHdr  string `validate:"required"`
	FormsRatePerMin int    `validate:"min=1"`

	HTTPTimeout      time.Duration `validate:"gt=0"`
	RouteConcurrency int           `validate:"min=1,max=32"`
	SiteConcurrency  int           `validate:"min=1,max=64"`
	LockTTL          time.Duration `validate:"gt=0"`

	ReportTopic       string
	ArchiveBucket     string
	ProvisionInterval time.Duration
}

// LoadSettings reads the environment (and .env) into Settings and validates it.
// A configuration error is fatal for a run.
func LoadSettings() (*Settings, error) {
	routes, err := parseRoutes(os.Getenv("LA_ROUTES"))
	if err != nil {
		return nil, err
	}

	tz := envString("LA_TIMEZONE", DefaultTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("LA_TIMEZONE %q: %w", tz, err)
	}

	cutoff, err := time.Parse("15:04", envString("LA_CUTOFF", DefaultCutoff))
	if err != nil {
		return nil, fmt.Errorf("LA_CUTOFF must be HH:MM: %w", err)
	}

	locale, err := language.Parse(envString("LA_LOCALE", "da"))
	if err != nil {
		return nil, fmt.Errorf("LA_LOCALE: %w", err)
	}

	s := &Settings{
		Routes:            routes,
		CutoffHour:        cutoff.Hour(),
		CutoffMinute:      cutoff.Minute(),
		Location:          loc,
		TemplateId:        intFromEnv("LA_TEMPLATE_ID", DefaultTemplateId),
		ProductLabel:      envString("LA_PRODUCT_LABEL", DefaultProductLabel),
		Locale:            locale,
		DocumentBaseURL:   strings.TrimRight(envString("LA_BASE_URL", DefaultDocumentBaseURL), "/"),
		OutputDir:         envString("LA_OUTPUT_DIR", DefaultOutputDir),
		FormsAPIBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("FORMS_API_BASE_URL")), "/"),
		FormsAPIKey:       strings.TrimSpace(os.Getenv("FORMS_API_KEY")),
		FormsAPIKeyHdr:    envString("FORMS_API_KEY_HEADER", "X-API-Key"),
		FormsRatePerMin:   intFromEnv("FORMS_RATE_LIMIT_PER_MIN", 600),
		HTTPTimeout:       time.Duration(intFromEnv("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RouteConcurrency:  intFromEnv("ROUTE_CONCURRENCY", 2),
		SiteConcurrency:   intFromEnv("SITE_CONCURRENCY", 4),
		LockTTL:           time.Duration(intFromEnv("LA_LOCK_TTL_SECONDS", 600)) * time.Second,
		ReportTopic:       strings.TrimSpace(os.Getenv("PROVISIONING_REPORT_TOPIC")),
		ArchiveBucket:     strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		ProvisionInterval: time.Duration(intFromEnv("PROVISION_INTERVAL_MINUTES", 0)) * time.Minute,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var settingsValidator = validator.New()

func (s *Settings) Validate() error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	if len(s.Routes) == 0 {
		return fmt.Errorf("%w: %s", ErrNoRoutes, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

// parseRoutes reads "24=Århus H - Aalborg;25=Aalborg - Lindholm".
// Routes come back ordered by id so runs are reproducible.
func parseRoutes(raw string) ([]Route, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		out := make([]Route, len(defaultRoutes))
		copy(out, defaultRoutes)
		return out, nil
	}
	seen := map[int]bool{}
	var routes []Route
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, name, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("LA_ROUTES entry %q: expected <id>=<name>", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("LA_ROUTES entry %q: %w", part, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("LA_ROUTES: duplicate route id %d", id)
		}
		seen[id] = true
		routes = append(routes, Route{RouteId: id, DisplayName: strings.TrimSpace(name)})
	}
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteId < routes[j].RouteId })
	return routes, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// EnvBool exposes envBoolDefault to the cmd packages.
func EnvBool(key string, def bool) bool {
	return envBoolDefault(key, def)
}

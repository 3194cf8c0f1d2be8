package lookup

import (
	"context"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/bizfinder/internal/business"
)

var tracer = otel.Tracer("github.com/joelkehle/bizfinder/internal/lookup")

type Config struct {
	// DescriptionLanguage is the language requested for record descriptions.
	DescriptionLanguage string
}

type Service struct {
	gen Generator
	cfg Config
}

func NewService(gen Generator, cfg Config) *Service {
	if strings.TrimSpace(cfg.DescriptionLanguage) == "" {
		cfg.DescriptionLanguage = DefaultDescriptionLanguage
	}
	return &Service{gen: gen, cfg: cfg}
}

func (s *Service) ModelName() string { return s.gen.ModelName() }

// Search asks the provider for businesses of industry in location, skipping
// excludeNames. Provider failures come back as *Error; unusable output is an
// empty result with a nil error.
func (s *Service) Search(ctx context.Context, industry, location string, excludeNames []string) ([]business.Record, error) {
	ctx, span := tracer.Start(ctx, "lookup.Search", trace.WithAttributes(
		attribute.String("bizfinder.industry", industry),
		attribute.String("bizfinder.location", location),
		attribute.Int("bizfinder.exclude_count", len(excludeNames)),
		attribute.String("bizfinder.model", s.gen.ModelName()),
	))
	defer span.End()

	prompt := buildSearchPrompt(industry, location, excludeNames, s.cfg.DescriptionLanguage)
	gen, err := s.gen.Generate(ctx, prompt, GenerateOptions{MapsGrounding: true})
	if err != nil {
		err = wrapTransport(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, err
	}

	elems := extractElements(gen.Text)
	if elems == nil && strings.TrimSpace(gen.Text) != "" {
		log.Printf("lookup parse_degraded industry=%q location=%q response_chars=%d", industry, location, len(gen.Text))
	}
	records := make([]business.Record, 0, len(elems))
	for _, el := range elems {
		r := business.Normalize(el, industry)
		if uri, ok := matchCitation(r.Name, gen.Citations); ok {
			r.MapsURI = uri
		}
		records = append(records, r)
	}
	span.SetAttributes(
		attribute.Int("bizfinder.result_count", len(records)),
		attribute.Int("bizfinder.citation_count", len(gen.Citations)),
	)
	log.Printf("lookup search_complete industry=%q location=%q excluded=%d results=%d citations=%d", industry, location, len(excludeNames), len(records), len(gen.Citations))
	return records, nil
}

// ListSubAreas returns administrative subdivisions of location, one per
// line of model output. It never fails; any problem yields nil.
func (s *Service) ListSubAreas(ctx context.Context, location string) []string {
	ctx, span := tracer.Start(ctx, "lookup.ListSubAreas", trace.WithAttributes(
		attribute.String("bizfinder.location", location),
	))
	defer span.End()

	gen, err := s.gen.Generate(ctx, buildSubAreaPrompt(location), GenerateOptions{})
	if err != nil {
		span.RecordError(err)
		log.Printf("lookup subareas_failed location=%q err=%q", location, err.Error())
		return nil
	}
	areas := splitLines(gen.Text)
	span.SetAttributes(attribute.Int("bizfinder.area_count", len(areas)))
	return areas
}

// matchCitation returns the URI of the first citation whose title contains
// name, case-insensitively.
func matchCitation(name string, citations []Citation) (string, bool) {
	needle := strings.ToLower(name)
	if needle == "" {
		return "", false
	}
	for _, c := range citations {
		if c.URI == "" {
			continue
		}
		if strings.Contains(strings.ToLower(c.Title), needle) {
			return c.URI, true
		}
	}
	return "", false
}

package providerselect

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

// Mode is the capability-validation strictness, spec.md §4.7 step 4.
type Mode string

const (
	ModeStrict Mode = "STRICT"
	ModeLax    Mode = "LAX"
)

// capabilityTTL bounds how long a validation result is trusted before being
// recomputed, per SPEC_FULL.md's "Template capability caching" feature.
const capabilityTTL = 5 * 60 // seconds

// SpotPriceLookup is the optional enrichment of spec.md's VALIDATE_TEMPLATE
// (original_source/'s spot-price-history check, see SPEC_FULL.md "Supplemented
// features"): when set, CapabilityValidator warns (never fails) if a
// template's max_price undercuts the recent spot price.
type SpotPriceLookup interface {
	RecentSpotPrice(ctx context.Context, instanceType string) (float64, error)
}

// CapabilityValidator implements spec.md §4.7 step 4's template-compatibility
// check against a selected provider instance.
type CapabilityValidator struct {
	spotPrices SpotPriceLookup
	cache      *gocache.Cache
}

func NewCapabilityValidator(spotPrices SpotPriceLookup) *CapabilityValidator {
	ttl := time.Duration(capabilityTTL) * time.Second
	return &CapabilityValidator{spotPrices: spotPrices, cache: gocache.New(ttl, 2*ttl)}
}

func cacheKey(instanceName, templateID string) string { return instanceName + "/" + templateID }

// Validate checks tmpl's static validity and, in STRICT mode, that instance
// declares a capability matching tmpl's provider_api hint. Results are
// cached per {provider_instance, template_id} for a short TTL.
func (v *CapabilityValidator) Validate(ctx context.Context, instance *Instance, tmpl *template.Template, mode Mode) template.ValidationResult {
	key := cacheKey(instance.Name, tmpl.TemplateID)
	if cached, ok := v.cache.Get(key); ok {
		if result, ok := cached.(template.ValidationResult); ok {
			return result
		}
	}

	result := tmpl.Validate()
	if mode == ModeStrict && tmpl.ProviderAPI != "" && !instance.HasCapability(string(tmpl.ProviderAPI)) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"provider instance %q does not declare capability %q", instance.Name, tmpl.ProviderAPI))
	}

	if v.spotPrices != nil && tmpl.PriceType == template.PriceSpot && tmpl.MaxPrice > 0 {
		for _, it := range tmpl.InstanceTypes() {
			price, err := v.spotPrices.RecentSpotPrice(ctx, it)
			if err != nil {
				continue
			}
			if tmpl.MaxPrice < price {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"max_price %.4f is below the recent spot price %.4f for %s", tmpl.MaxPrice, price, it))
			}
		}
	}

	v.cache.Set(key, result, gocache.DefaultExpiration)
	return result
}

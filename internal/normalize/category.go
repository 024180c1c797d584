package normalize

import (
	"strconv"

	"github.com/sells-group/submission-intake/internal/model"
)

var (
	brokerFields = []string{
		"broker_name",
		"broker_address",
		"broker_city",
		"broker_state",
		"broker_postal_code",
		"broker_contact_points",
		"broker_email",
		"broker_contact_phone",
	}

	productFields = []string{
		"normalized_product",
		"policy_inception_date",
		"end_date",
		"submission_received_date",
		"target_premium",
		"underwriter",
		"underwriter_email",
		"workers_comp_estimated_annual_payroll",
		"expiring_premium",
		"lob",
	}

	limitFields = []string{
		"100_pct_limit",
		"normalized_coverage",
		"coverage",
	}

	// standardLocationFacts are reported by the property package and so
	// left out of advanced_facts.
	standardLocationFacts = map[string]bool{
		"building_number":                true,
		"location_address":               true,
		"location_city":                  true,
		"location_state":                 true,
		"location_postal_code":           true,
		"location_country":               true,
		"location_occupancy_description": true,
		"year_built":                     true,
	}

	rmsFields        = []string{"rms_construction_code", "rms_construction_description"}
	atcFields        = []string{"atc_construction_code", "atc_construction_description"}
	protectionFields = []string{"burglar_alarm_type"}
	buildingFields   = []string{"location_doc_id", "atc_occupancy_description"}
)

func commonDefault(key string) model.Value {
	switch key {
	case "normalized_product", "normalized_coverage", "coverage":
		return model.Array()
	case "100_pct_limit":
		return model.FromObject(nil)
	default:
		return model.String("")
	}
}

// Common normalizes the common data package.
func Common(raw model.Value) (*model.CommonCategory, error) {
	data, err := requiredData(model.CategoryCommon, raw, model.KindObject)
	if err != nil {
		return nil, err
	}
	b, err := readBundle(model.CategoryCommon, data, "data", raw, "")
	if err != nil {
		return nil, err
	}

	d := decorator{scorer: scorer{scores: b.scores}}
	return &model.CommonCategory{
		Firmographics:      d.section(b.facts),
		BrokerDetails:      d.section(lift(b.options, commonDefault, brokerFields...)),
		ProductDetails:     d.section(lift(b.options, commonDefault, productFields...)),
		LimitsAndCoverages: d.section(lift(b.options, commonDefault, limitFields...)),
	}, nil
}

// Property normalizes the property data package, one entry per location.
func Property(raw model.Value) (model.PropertyCategory, error) {
	data, err := requiredData(model.CategoryProperty, raw, model.KindArray)
	if err != nil {
		return nil, err
	}
	items, _ := data.Items()

	out := model.PropertyCategory{}
	for i, item := range items {
		path := "data[" + strconv.Itoa(i) + "]"
		b, err := readLocation(model.CategoryProperty, item, path)
		if err != nil {
			return nil, err
		}
		if skipLocation(b.facts) {
			continue
		}

		d := decorator{scorer: scorer{scores: b.scores}}
		loc := model.PropertyLocation{StandardFacts: d.section(b.facts)}

		if v, ok := b.options.Get("100_pct_coverage_limits"); ok {
			limits, ok := v.Object()
			if !ok {
				return nil, shapeErr(model.CategoryProperty, path+".options.100_pct_coverage_limits",
					"expected object, got %s", v.Kind())
			}
			parentScore := d.score("100_pct_coverage_limits")
			var sec model.Section
			limits.Range(func(k string, lv model.Value) bool {
				sec.Set(k, model.FieldNode(model.NewScoredField(lv, parentScore, true)))
				return true
			})
			loc.Limits.Set("100_pct_coverage_limits", model.GroupNode(sec))
		}
		if v, ok := b.options.Get("100_pct_limit"); ok {
			loc.Limits.Set("100_pct_limit", d.whole("100_pct_limit", v))
		}

		loc.BuildingDetails = d.section(lift(b.options, emptyString, buildingFields...))
		out = append(out, loc)
	}
	return out, nil
}

// AdvancedProperty normalizes the advanced property data package, one
// entry per location.
func AdvancedProperty(raw model.Value) (model.AdvancedPropertyCategory, error) {
	data, err := requiredData(model.CategoryAdvancedProperty, raw, model.KindArray)
	if err != nil {
		return nil, err
	}
	items, _ := data.Items()

	out := model.AdvancedPropertyCategory{}
	for i, item := range items {
		path := "data[" + strconv.Itoa(i) + "]"
		b, err := readLocation(model.CategoryAdvancedProperty, item, path)
		if err != nil {
			return nil, err
		}
		if skipLocation(b.facts) {
			continue
		}

		d := decorator{scorer: scorer{scores: b.scores}}
		var loc model.AdvancedPropertyLocation
		b.facts.Range(func(k string, v model.Value) bool {
			if !standardLocationFacts[k] {
				loc.AdvancedFacts.Set(k, d.node(k, v))
			}
			return true
		})
		loc.RMSDetails = d.section(pick(b.options, rmsFields...))
		loc.ATCDetails = d.section(pick(b.options, atcFields...))
		loc.ProtectionDetails = d.section(pick(b.options, protectionFields...))
		out = append(out, loc)
	}
	return out, nil
}

// GeneralLiability normalizes the general liability data package.
func GeneralLiability(raw model.Value) (*model.GeneralLiabilityCategory, error) {
	data, err := requiredData(model.CategoryGeneralLiability, raw, model.KindObject)
	if err != nil {
		return nil, err
	}
	b, err := readBundle(model.CategoryGeneralLiability, data, "data", raw, "")
	if err != nil {
		return nil, err
	}

	d := decorator{scorer: scorer{scores: b.scores}}
	return &model.GeneralLiabilityCategory{
		Facts:   d.section(b.facts),
		Options: d.section(b.options),
	}, nil
}

// Auto normalizes the auto data package. Every scalar is converted to its
// text form before decoration.
func Auto(raw model.Value) (*model.AutoCategory, error) {
	data, err := requiredData(model.CategoryAuto, raw, model.KindObject)
	if err != nil {
		return nil, err
	}
	b, err := readBundle(model.CategoryAuto, data, "data", raw, "")
	if err != nil {
		return nil, err
	}

	d := decorator{scorer: scorer{scores: b.scores}, coerce: true}
	return &model.AutoCategory{Auto: model.AutoFacts{Facts: d.section(b.facts)}}, nil
}

// LossRun returns the loss run package's data as reported.
func LossRun(raw model.Value) (model.Value, error) {
	return passthrough(model.CategoryLossRun, raw)
}

// WorkersComp returns the workers compensation package's data as reported.
func WorkersComp(raw model.Value) (model.Value, error) {
	return passthrough(model.CategoryWorkersComp, raw)
}

func passthrough(category string, raw model.Value) (model.Value, error) {
	if raw.Kind() != model.KindObject {
		return model.Value{}, shapeErr(category, "", "expected object, got %s", raw.Kind())
	}
	data, ok := raw.Get("data")
	if !ok {
		return model.Value{}, shapeErr(category, "data", "missing")
	}
	return data.Clone(), nil
}

func readLocation(category string, item model.Value, path string) (bundle, error) {
	if item.Kind() != model.KindObject {
		return bundle{}, shapeErr(category, path, "expected object, got %s", item.Kind())
	}
	return readBundle(category, item, path, item, path)
}

// skipLocation reports whether a location lacks both a building number and
// an address.
func skipLocation(facts *model.Object) bool {
	number, _ := facts.Get("building_number")
	address, _ := facts.Get("location_address")
	return number.IsBlank() && address.IsBlank()
}

// pick copies the named keys that are present in src, in order.
func pick(src *model.Object, keys ...string) *model.Object {
	out := model.NewObject()
	for _, k := range keys {
		if v, ok := src.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/submission-intake/internal/model"
)

func parse(t *testing.T, s string) model.Value {
	t.Helper()
	v, err := model.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func encode(t *testing.T, x any) string {
	t.Helper()
	b, err := json.Marshal(x)
	require.NoError(t, err)
	return string(b)
}

func TestCommon_EndToEnd(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{
		"data": {
			"facts": {"insured_name": "Acme", "primary_sic": ["1711"], "address": {"city": "Austin"}},
			"options": {"broker_name": "Brokers Inc", "normalized_product": ["Property"], "lob": "CPP",
				"100_pct_limit": {"building": 1000000}}
		},
		"scores": {"insured_name": 0.98, "broker_name": 0.7, "city": 0.5, "building": 0.6}
	}`)

	got, err := Common(raw)
	require.NoError(t, err)

	want := `{
		"Firmographics": {
			"insured_name": {"value": "Acme", "score": 0.98},
			"primary_sic": ["1711"],
			"address": {"city": {"value": "Austin", "score": 0.5}}
		},
		"Broker Details": {
			"broker_name": {"value": "Brokers Inc", "score": 0.7},
			"broker_address": {"value": "", "score": ""},
			"broker_city": {"value": "", "score": ""},
			"broker_state": {"value": "", "score": ""},
			"broker_postal_code": {"value": "", "score": ""},
			"broker_contact_points": {"value": "", "score": ""},
			"broker_email": {"value": "", "score": ""},
			"broker_contact_phone": {"value": "", "score": ""}
		},
		"Product Details": {
			"normalized_product": ["Property"],
			"policy_inception_date": {"value": "", "score": ""},
			"end_date": {"value": "", "score": ""},
			"submission_received_date": {"value": "", "score": ""},
			"target_premium": {"value": "", "score": ""},
			"underwriter": {"value": "", "score": ""},
			"underwriter_email": {"value": "", "score": ""},
			"workers_comp_estimated_annual_payroll": {"value": "", "score": ""},
			"expiring_premium": {"value": "", "score": ""},
			"lob": {"value": "CPP", "score": ""}
		},
		"Limits and Coverages": {
			"100_pct_limit": {"building": {"value": 1000000, "score": 0.6}},
			"normalized_coverage": [],
			"coverage": []
		}
	}`
	assert.JSONEq(t, want, encode(t, got))
}

func TestCommon_OrderFollowsInput(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": {"facts": {"b": 1, "a": 2}}}`)
	got, err := Common(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got.Firmographics.Keys())
}

func TestCommon_MissingData(t *testing.T) {
	t.Parallel()

	_, err := Common(parse(t, `{"scores": {}}`))
	require.Error(t, err)
	se, ok := AsShapeError(err)
	require.True(t, ok)
	assert.Equal(t, model.CategoryCommon, se.Category)
	assert.Equal(t, "data", se.Path)

	_, err = Common(parse(t, `{"data": []}`))
	require.Error(t, err)

	_, err = Common(parse(t, `{"data": {"facts": "oops"}}`))
	require.Error(t, err)
	se, ok = AsShapeError(err)
	require.True(t, ok)
	assert.Equal(t, "data.facts", se.Path)
}

func TestDecoration_SequencesPassThrough(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": {"facts": {"codes": [1, {"x": 2}, "three"]}, "options": {"limits": [5]}}, "scores": {"codes": 0.9}}`)
	gl, err := GeneralLiability(raw)
	require.NoError(t, err)

	n, ok := gl.Facts.Get("codes")
	require.True(t, ok)
	v, ok := n.Raw()
	require.True(t, ok)
	assert.Equal(t, `[1,{"x":2},"three"]`, encode(t, v))

	n, ok = gl.Options.Get("limits")
	require.True(t, ok)
	_, ok = n.Raw()
	assert.True(t, ok)
}

func TestDecoration_ScoresFromScorer(t *testing.T) {
	t.Parallel()

	scores := model.NewObject()
	scores.Set("zip", model.Number("0.97"))
	scores.Set("limit", model.Null())
	d := decorator{scorer: scorer{scores: scores}}

	for key, want := range map[string]string{
		"zip":   `{"value":"78701","score":0.97}`,
		"limit": `{"value":"78701","score":null}`,
		"city":  `{"value":"78701","score":""}`,
	} {
		n := d.node(key, model.String("78701"))
		f, ok := n.Field()
		require.True(t, ok, key)
		assert.JSONEq(t, want, encode(t, f), key)
		assert.JSONEq(t, want, encode(t, d.whole(key, model.String("78701"))), key)
	}
}

func TestGeneralLiability(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": {"facts": {"class_code": "91111", "sales": 2500000}, "options": {"deductible": null}}, "scores": {"class_code": 0.88}}`)
	got, err := GeneralLiability(raw)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"gl_facts": {"class_code": {"value": "91111", "score": 0.88}, "sales": {"value": 2500000, "score": ""}},
		"gl_options": {"deductible": {"value": null, "score": ""}}
	}`, encode(t, got))

	_, err = GeneralLiability(parse(t, `{"scores": {}}`))
	require.Error(t, err)
}

func TestAuto_CoercesScalarsToStrings(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{
		"data": {"facts": {
			"vehicle_count": 12,
			"radius": 1.50,
			"hazmat": false,
			"garaging": null,
			"name": "Fleet",
			"drivers": {"count": 4},
			"vins": [123, true, {"year": 2020}]
		}},
		"scores": {"vehicle_count": 0.9}
	}`)

	got, err := Auto(raw)
	require.NoError(t, err)

	assert.JSONEq(t, `{"Auto": {"auto_facts": {
		"vehicle_count": {"value": "12", "score": 0.9},
		"radius": {"value": "1.50", "score": ""},
		"hazmat": {"value": "false", "score": ""},
		"garaging": {"value": "", "score": ""},
		"name": {"value": "Fleet", "score": ""},
		"drivers": {"count": {"value": "4", "score": ""}},
		"vins": ["123", "true", {"year": "2020"}]
	}}}`, encode(t, got))
}

func TestAuto_MissingData(t *testing.T) {
	t.Parallel()

	_, err := Auto(parse(t, `{}`))
	require.Error(t, err)
	_, ok := AsShapeError(err)
	assert.True(t, ok)
}

func TestProperty(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": [
		{
			"facts": {"building_number": "1", "location_address": "1 Main St", "year_built": 1999},
			"options": {
				"100_pct_coverage_limits": {"building": 500000, "contents": 100000},
				"location_doc_id": "doc-7"
			},
			"scores": {"building_number": 0.9, "100_pct_coverage_limits": 0.75, "location_doc_id": 0.4}
		},
		{
			"facts": {"building_number": "", "location_address": null, "year_built": 2001},
			"options": {}, "scores": {}
		},
		{
			"facts": {"location_address": "9 Side St"},
			"options": {"100_pct_limit": {"tiv": 10}},
			"scores": {"100_pct_limit": 0.3}
		}
	]}`)

	got, err := Property(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.JSONEq(t, `[
		{
			"standard_facts": {
				"building_number": {"value": "1", "score": 0.9},
				"location_address": {"value": "1 Main St", "score": ""},
				"year_built": {"value": 1999, "score": ""}
			},
			"limits": {
				"100_pct_coverage_limits": {
					"building": {"value": 500000, "score": 0.75},
					"contents": {"value": 100000, "score": 0.75}
				}
			},
			"building_details": {
				"location_doc_id": {"value": "doc-7", "score": 0.4},
				"atc_occupancy_description": {"value": "", "score": ""}
			}
		},
		{
			"standard_facts": {"location_address": {"value": "9 Side St", "score": ""}},
			"limits": {"100_pct_limit": {"value": {"tiv": 10}, "score": 0.3}},
			"building_details": {
				"location_doc_id": {"value": "", "score": ""},
				"atc_occupancy_description": {"value": "", "score": ""}
			}
		}
	]`, encode(t, got))
}

func TestProperty_AllSkippedEncodesEmptyList(t *testing.T) {
	t.Parallel()

	got, err := Property(parse(t, `{"data": [{"facts": {}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", encode(t, got))
}

func TestProperty_ShapeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"missing data", `{}`, "data"},
		{"data not a list", `{"data": {}}`, "data"},
		{"location not an object", `{"data": ["x"]}`, "data[0]"},
		{"coverage limits not an object", `{"data": [{"facts": {"building_number": "1"}, "options": {"100_pct_coverage_limits": 5}}]}`,
			"data[0].options.100_pct_coverage_limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Property(parse(t, tt.raw))
			require.Error(t, err)
			se, ok := AsShapeError(err)
			require.True(t, ok)
			assert.Equal(t, tt.path, se.Path)
		})
	}
}

func TestAdvancedProperty(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": [
		{
			"facts": {"building_number": "2", "location_city": "Austin", "roof_type": "metal", "stories": 3},
			"options": {"rms_construction_code": "1", "atc_construction_description": "Frame", "burglar_alarm_type": "central", "other": "x"},
			"scores": {"roof_type": 0.6, "rms_construction_code": 0.9}
		},
		{"facts": {"location_city": "Dallas"}}
	]}`)

	got, err := AdvancedProperty(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.JSONEq(t, `[{
		"advanced_facts": {
			"roof_type": {"value": "metal", "score": 0.6},
			"stories": {"value": 3, "score": ""}
		},
		"rms_details": {"rms_construction_code": {"value": "1", "score": 0.9}},
		"atc_details": {"atc_construction_description": {"value": "Frame", "score": ""}},
		"protection_details": {"burglar_alarm_type": {"value": "central", "score": ""}}
	}]`, encode(t, got))
}

func TestRecordSkip_EitherFieldKeepsLocation(t *testing.T) {
	t.Parallel()

	for _, facts := range []string{
		`{"building_number": "7"}`,
		`{"location_address": "1 Elm"}`,
		`{"building_number": 0}`,
		`{"building_number": false}`,
	} {
		got, err := AdvancedProperty(parse(t, `{"data": [{"facts": `+facts+`}]}`))
		require.NoError(t, err)
		assert.Len(t, got, 1, facts)
	}

	for _, facts := range []string{
		`{}`,
		`{"building_number": "", "location_address": ""}`,
		`{"building_number": null, "location_address": []}`,
	} {
		got, err := AdvancedProperty(parse(t, `{"data": [{"facts": `+facts+`}]}`))
		require.NoError(t, err)
		assert.Empty(t, got, facts)
	}
}

func TestLossRunAndWorkersComp_PassThrough(t *testing.T) {
	t.Parallel()

	raw := parse(t, `{"data": {"claims": [{"amount": 1.10}]}, "scores": {"claims": 1}}`)
	v, err := LossRun(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"claims":[{"amount":1.10}]}`, encode(t, v))

	v, err = WorkersComp(parse(t, `{"data": [1, 2]}`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, encode(t, v))

	_, err = WorkersComp(parse(t, `{"scores": {}}`))
	require.Error(t, err)
	_, err = LossRun(parse(t, `[]`))
	require.Error(t, err)
}

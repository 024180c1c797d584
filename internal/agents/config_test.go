package agents

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/submission-intake/internal/model"
)

func parse(t *testing.T, raw string) model.Value {
	t.Helper()
	v, err := model.Parse([]byte(raw))
	require.NoError(t, err)
	return v
}

func encode(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestCraftConfig_StructuredOutput(t *testing.T) {
	tests := []struct {
		name    string
		toggle  bool
		raw     string // "" means absent
		want    string
		wantErr bool
	}{
		{name: "toggle off ignores schema", toggle: false, raw: `{"type":"object"}`, want: `{}`},
		{name: "toggle off absent", toggle: false, want: `{}`},
		{name: "explicit false", toggle: true, raw: `false`, want: `null`},
		{name: "absent with toggle on", toggle: true, want: `{}`},
		{name: "string schema unwrapped", toggle: true, raw: `"{\"structured_output\":{\"type\":\"object\"}}"`, want: `{"type":"object"}`},
		{name: "string schema bare", toggle: true, raw: `"{\"type\":\"array\"}"`, want: `{"type":"array"}`},
		{name: "object schema unwrapped", toggle: true, raw: `{"structured_output":{"a":1}}`, want: `{"a":1}`},
		{name: "object schema bare", toggle: true, raw: `{"a":1}`, want: `{"a":1}`},
		{name: "invalid string", toggle: true, raw: `"{not json"`, wantErr: true},
		{name: "true is not a schema", toggle: true, raw: `true`, wantErr: true},
		{name: "number is not a schema", toggle: true, raw: `3`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.AgentRecord{AgentID: "a1", Configuration: model.AgentConfiguration{StructuredOutputToggle: tt.toggle}}
			if tt.raw != "" {
				rec.Configuration.StructuredOutput = parse(t, tt.raw)
			}
			cfg, err := CraftConfig(rec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "a1")
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, encode(t, cfg.Configuration.StructuredOutput))
		})
	}
}

func TestCraftConfig_KnowledgeBase(t *testing.T) {
	rec := model.AgentRecord{
		AgentID:               "a1",
		SelectedKnowledgeBase: parse(t, `{"id":"kb-9","name":"Appetite","collection_name":"appetite_v2","description":"carrier appetite","extra":true}`),
	}
	cfg, err := CraftConfig(rec)
	require.NoError(t, err)

	wantKB := `{"id":"kb-9","name":"Appetite","enabled":"yes","collection_name":"appetite_v2",
		"embedding_model":"BAAI/bge-small-en-v1.5","description":"carrier appetite","number_of_chunks":5}`
	assert.JSONEq(t, wantKB, encode(t, cfg.KnowledgeBase))
	assert.JSONEq(t, wantKB, encode(t, cfg.Configuration.KnowledgeBase))
	assert.JSONEq(t, `{"id":"kb-9","name":"Appetite","collection_name":"appetite_v2","description":"carrier appetite","extra":true}`,
		encode(t, cfg.SelectedKnowledgeBase))
}

func TestCraftConfig_Defaults(t *testing.T) {
	cfg, err := CraftConfig(model.AgentRecord{AgentID: "a1", AgentName: "LossInsight"})
	require.NoError(t, err)

	want := `{
		"AgentID":"a1","AgentName":"LossInsight","AgentDesc":"","CreatedOn":"",
		"Configuration":{"name":"","function_description":"","system_message":"","tools":[],"category":"",
			"structured_output":{},"knowledge_base":{}},
		"isManagerAgent":false,"selectedManagerAgents":[],"managerAgentIntention":"",
		"selectedKnowledgeBase":{},"knowledge_base":{},"coreFeatures":{},
		"llmProvider":"","llmModel":""
	}`
	assert.JSONEq(t, want, encode(t, cfg))
}

func TestCraftConfig_FromStoredRecord(t *testing.T) {
	var rec model.AgentRecord
	require.NoError(t, json.Unmarshal([]byte(`{
		"AgentID":"a9","AgentName":"PropEval","AgentDesc":"property evaluation","CreatedOn":"2025-01-02",
		"Configuration":{"name":"prop","function_description":"fd","system_message":"You are...",
			"tools":[{"name":"geocode"}],"category":"property","structured_output_toggle":true,
			"structured_output":"{\"structured_output\":{\"fields\":[\"tiv\"]}}"},
		"isManagerAgent":true,"selectedManagerAgents":["m1"],"managerAgentIntention":"route",
		"coreFeatures":{"memory":true},"llmProvider":"openai","llmModel":"gpt-4o"
	}`), &rec))

	cfg, err := CraftConfig(rec)
	require.NoError(t, err)
	assert.Equal(t, "PropEval", cfg.AgentName)
	assert.Equal(t, "You are...", cfg.Configuration.SystemMessage)
	assert.True(t, cfg.IsManagerAgent)
	assert.JSONEq(t, `[{"name":"geocode"}]`, encode(t, cfg.Configuration.Tools))
	assert.JSONEq(t, `{"fields":["tiv"]}`, encode(t, cfg.Configuration.StructuredOutput))
	assert.JSONEq(t, `["m1"]`, encode(t, cfg.SelectedManagerAgents))
	assert.JSONEq(t, `{"memory":true}`, encode(t, cfg.CoreFeatures))
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
}

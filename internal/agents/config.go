package agents

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/pkg/agentsvc"
)

// Knowledge-base settings forced on every agent that has one selected.
const (
	EmbeddingModel = "BAAI/bge-small-en-v1.5"
	NumberOfChunks = 5
)

// CraftConfig projects a catalog record into the config sent with each
// query.
func CraftConfig(rec model.AgentRecord) (agentsvc.AgentConfig, error) {
	structured, err := structuredOutput(rec.Configuration)
	if err != nil {
		return agentsvc.AgentConfig{}, eris.Wrapf(err, "agents: craft config for %s", rec.AgentID)
	}

	kb, selected := knowledgeBase(rec.SelectedKnowledgeBase)
	cfg := rec.Configuration
	return agentsvc.AgentConfig{
		AgentID:   rec.AgentID,
		AgentName: rec.AgentName,
		AgentDesc: rec.AgentDesc,
		CreatedOn: rec.CreatedOn,
		Configuration: agentsvc.Configuration{
			Name:                cfg.Name,
			FunctionDescription: cfg.FunctionDescription,
			SystemMessage:       cfg.SystemMessage,
			Tools:               orDefault(cfg.Tools, model.Array()),
			Category:            cfg.Category,
			StructuredOutput:    structured,
			KnowledgeBase:       kb,
		},
		IsManagerAgent:        rec.IsManagerAgent,
		SelectedManagerAgents: orDefault(rec.SelectedManagerAgents, model.Array()),
		ManagerAgentIntention: rec.ManagerAgentIntention,
		SelectedKnowledgeBase: selected,
		KnowledgeBase:         kb,
		CoreFeatures:          orDefault(rec.CoreFeatures, model.FromObject(nil)),
		LLMProvider:           rec.LLMProvider,
		LLMModel:              rec.LLMModel,
	}, nil
}

// structuredOutput resolves the schema an agent should answer in. Toggle
// off yields {} and an explicit false yields null; otherwise the schema is
// parsed if stored as a string and unwrapped from a structured_output key.
func structuredOutput(cfg model.AgentConfiguration) (model.Value, error) {
	if !cfg.StructuredOutputToggle {
		return model.FromObject(nil), nil
	}

	raw := cfg.StructuredOutput
	switch raw.Kind() {
	case model.KindNull:
		return model.FromObject(nil), nil
	case model.KindBool:
		if b, _ := raw.Boolean(); !b {
			return model.Null(), nil
		}
		return model.Value{}, eris.New("structured_output is true, want a schema")
	case model.KindString:
		s, _ := raw.Str()
		parsed, err := model.Parse([]byte(s))
		if err != nil {
			return model.Value{}, eris.Wrap(err, "parse structured_output")
		}
		return unwrapSchema(parsed), nil
	case model.KindObject:
		return unwrapSchema(raw), nil
	default:
		return model.Value{}, eris.Errorf("structured_output is a %s, want an object or JSON string", raw.Kind())
	}
}

func unwrapSchema(v model.Value) model.Value {
	if inner, ok := v.Get("structured_output"); ok {
		return inner.Clone()
	}
	return v.Clone()
}

// knowledgeBase returns the projected settings and the selection to echo
// back. A missing or empty selection yields zero settings and {}.
func knowledgeBase(sel model.Value) (agentsvc.KnowledgeBase, model.Value) {
	obj, ok := sel.Object()
	if !ok || obj.Len() == 0 {
		return agentsvc.KnowledgeBase{}, model.FromObject(nil)
	}
	text := func(key string) string {
		v, _ := obj.Get(key)
		return v.Text()
	}
	return agentsvc.KnowledgeBase{
		ID:             text("id"),
		Name:           text("name"),
		Enabled:        "yes",
		CollectionName: text("collection_name"),
		EmbeddingModel: EmbeddingModel,
		Description:    text("description"),
		NumberOfChunks: NumberOfChunks,
	}, sel.Clone()
}

func orDefault(v, def model.Value) model.Value {
	if v.IsNull() {
		return def
	}
	return v.Clone()
}

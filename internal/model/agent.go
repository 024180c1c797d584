package model

// AgentRecord is an agent definition as stored in the agent catalog. Fields
// owned by the agent platform and forwarded verbatim are kept as Values.
type AgentRecord struct {
	AgentID               string             `json:"AgentID"`
	AgentName             string             `json:"AgentName,omitempty"`
	AgentDesc             string             `json:"AgentDesc,omitempty"`
	CreatedOn             string             `json:"CreatedOn,omitempty"`
	Configuration         AgentConfiguration `json:"Configuration"`
	SelectedKnowledgeBase Value              `json:"selectedKnowledgeBase"`
	IsManagerAgent        bool               `json:"isManagerAgent"`
	SelectedManagerAgents Value              `json:"selectedManagerAgents"`
	ManagerAgentIntention string             `json:"managerAgentIntention,omitempty"`
	CoreFeatures          Value              `json:"coreFeatures"`
	LLMProvider           string             `json:"llmProvider,omitempty"`
	LLMModel              string             `json:"llmModel,omitempty"`
}

// AgentConfiguration is the Configuration block of a catalog record.
type AgentConfiguration struct {
	Name                   string `json:"name,omitempty"`
	FunctionDescription    string `json:"function_description,omitempty"`
	SystemMessage          string `json:"system_message,omitempty"`
	Tools                  Value  `json:"tools"`
	Category               string `json:"category,omitempty"`
	StructuredOutputToggle bool   `json:"structured_output_toggle"`
	// StructuredOutput is a JSON document, either inline or as a string.
	StructuredOutput Value `json:"structured_output"`
}

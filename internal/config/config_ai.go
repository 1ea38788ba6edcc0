package config

// applyOperationDefaults fills unset operation fields from the global AI block.
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.BaseURL == "" {
		opCfg.BaseURL = c.AI.BaseURL
	}
	if opCfg.MaxRetries == nil {
		retries := c.AI.MaxRetries
		opCfg.MaxRetries = &retries
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
	if opCfg.UseSystemPrompts == nil {
		use := c.AI.UseSystemPrompts
		opCfg.UseSystemPrompts = &use
	}
}

// GetOperationConfig returns the resolved AI configuration for an operation.
// Unknown operation names resolve to the global block alone.
func (c *Config) GetOperationConfig(op string) OperationAIConfig {
	var opCfg OperationAIConfig
	switch op {
	case OpCheatSheet:
		opCfg = c.AI.CheatSheet
	case OpOutline:
		opCfg = c.AI.Outline
	case OpAnswer:
		opCfg = c.AI.Answer
	}

	c.applyOperationDefaults(&opCfg)

	// Prompts loaded from files win over inline config.
	loaded := GetPromptsForOperation(op)
	if loaded.System != "" {
		opCfg.Prompts.System = loaded.System
	}
	if loaded.User != "" {
		opCfg.Prompts.User = loaded.User
	}

	return opCfg
}

// GetCheatSheetConfig returns the AI configuration for cheat sheet generation.
func (c *Config) GetCheatSheetConfig() OperationAIConfig {
	return c.GetOperationConfig(OpCheatSheet)
}

// GetOutlineConfig returns the AI configuration for prep outline generation.
func (c *Config) GetOutlineConfig() OperationAIConfig {
	return c.GetOperationConfig(OpOutline)
}

// GetAnswerConfig returns the AI configuration for answer drafting.
func (c *Config) GetAnswerConfig() OperationAIConfig {
	return c.GetOperationConfig(OpAnswer)
}

// operationConfigs lists the raw per-operation blocks by name.
func (c *Config) operationConfigs() map[string]*OperationAIConfig {
	return map[string]*OperationAIConfig{
		OpCheatSheet: &c.AI.CheatSheet,
		OpOutline:    &c.AI.Outline,
		OpAnswer:     &c.AI.Answer,
	}
}

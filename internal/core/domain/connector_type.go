package domain

// ConnectorType describes a supported connector.
type ConnectorType struct {
	// ID is the unique identifier (e.g., "gmail", "github", "notion").
	ID string
	// Name is the human-readable display name.
	Name string
	// Description provides a brief explanation of the connector.
	Description string
	// PageMode is how the connector paginates.
	PageMode PageMode
	// ConfigKeys lists the configuration fields required by this connector.
	ConfigKeys []ConfigKey
}

// ConfigKey describes a configuration field for a connector.
type ConfigKey struct {
	// Key is the configuration key name.
	Key string
	// Description explains what this field is for.
	Description string
	// Required indicates whether this field must be provided.
	Required bool
}

// MissingKeys returns the required keys absent from config.
func (c *ConnectorType) MissingKeys(config map[string]string) []string {
	var missing []string
	for _, k := range c.ConfigKeys {
		if k.Required && config[k.Key] == "" {
			missing = append(missing, k.Key)
		}
	}
	return missing
}

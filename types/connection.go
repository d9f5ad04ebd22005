package types

// ProviderConnection is one configured credential/scope for one provider
// account. Created by the user, read-only to the sync engine.
type ProviderConnection struct {
	ID       string            `yaml:"id" json:"id"`
	Name     string            `yaml:"name" json:"name"`
	Provider string            `yaml:"provider" json:"provider"` // aws, azure
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Setting returns a connection setting or a default.
func (c *ProviderConnection) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

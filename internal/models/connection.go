package models

// ConnectionConfig describes how to reach a product catalog database.
// URI wins over the discrete fields when set.
type ConnectionConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	URI        string `mapstructure:"uri" yaml:"uri"`
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Database   string `mapstructure:"database" yaml:"database"`
	User       string `mapstructure:"user" yaml:"user"`
	Password   string `mapstructure:"password" yaml:"password"`
	SSLMode    string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	Table      string `mapstructure:"table" yaml:"table"`
}

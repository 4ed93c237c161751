package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Storage  MStorageConfig `yaml:"storage"`
	Network  MNetworkConfig `yaml:"network"`
	Kline    MKlineConfig   `yaml:"kline"`
	Cache    MCacheConfig   `yaml:"cache"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	UserAgent      string `yaml:"user_agent"`
}

type MKlineConfig struct {
	HTTPURL               string       `yaml:"http_url"`
	WSURL                 string       `yaml:"ws_url"`
	ReconnectDelaySeconds int          `yaml:"reconnect_delay_seconds"`
	BackfillHours         int          `yaml:"backfill_hours"`
	Intervals             []Interval   `yaml:"intervals"`
	Pairs                 []MTokenPair `yaml:"pairs"`
}

type MTokenPair struct {
	Token0 string `yaml:"token0"`
	Token1 string `yaml:"token1"`
}

type MCacheConfig struct {
	MaxPoints int `yaml:"max_points"`
}

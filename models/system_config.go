package models

import "time"

// Well-known system configuration keys.
const (
	ConfigEnable2FA            = "enable_2fa"
	ConfigEnableIPAllowList    = "enable_ip_allow_list"
	ConfigIPAllowList          = "ip_allow_list"
	ConfigTokenExpirationHours = "token_expiration_hours"
)

// SystemConfig is one key/value setting. ConfigValue holds any JSON value.
type SystemConfig struct {
	ID           int        `json:"id"`
	ConfigName   string     `json:"config_name"`
	ConfigKey    string     `json:"config_key"`
	ConfigValue  any        `json:"config_value"`
	ConfigRemark string     `json:"config_remark"`
	ConfigGroup  string     `json:"config_group"`
	CreatedAt    Timestamp  `json:"created_at"`
	UpdatedAt    *Timestamp `json:"updated_at"`
}

func (c SystemConfig) RecordID() string { return c.ConfigKey }

func (c *SystemConfig) Touch(t time.Time) { c.UpdatedAt = Stamp(t) }

package dtbloader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/darkit/dtbloader/chid"
	"github.com/darkit/dtbloader/fdt"
	"github.com/darkit/dtbloader/inventory"
)

const (
	// DefaultHeadroom 为后续补丁预留的空间
	DefaultHeadroom = 4096
	// DefaultMaxArtifactSize 单个 DTB 的分配上限
	DefaultMaxArtifactSize = 32 << 20
	// EnvPrefix 环境变量前缀，例如 DTBLOADER_VOLUME
	EnvPrefix = "DTBLOADER"
	// ConfigName 配置文件名（不含扩展名）
	ConfigName = "dtbloader"
)

// Version 组件版本，登记到 inventory
const Version = "1.2.0"

// Config 加载器配置
type Config struct {
	Volume          string    `mapstructure:"volume" json:"volume" yaml:"volume"`
	Layout          Layout    `mapstructure:"layout" json:"layout" yaml:"layout"`
	Priority        []string  `mapstructure:"priority" json:"priority" yaml:"priority"`
	Headroom        int       `mapstructure:"headroom" json:"headroom" yaml:"headroom"`
	MaxArtifactSize int       `mapstructure:"max_artifact_size" json:"max_artifact_size" yaml:"max_artifact_size"`
	EfivarsDir      string    `mapstructure:"efivars_dir" json:"efivars_dir" yaml:"efivars_dir"`
	InventoryFile   string    `mapstructure:"inventory_file" json:"inventory_file" yaml:"inventory_file"`
	Version         string    `mapstructure:"version" json:"version" yaml:"version"`
	Log             LogConfig `mapstructure:"log" json:"log" yaml:"log"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level" json:"level" yaml:"level"`
	Development bool   `mapstructure:"development" json:"development" yaml:"development"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Volume:          "/boot/efi",
		Layout:          DefaultLayout(),
		Priority:        chid.DefaultPriority.Labels(),
		Headroom:        DefaultHeadroom,
		MaxArtifactSize: DefaultMaxArtifactSize,
		EfivarsDir:      "/sys/firmware/efi/efivars",
		Version:         Version,
		Log:             LogConfig{Level: "info"},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	invalid := func(field, msg string, cause error) error {
		return newError(Invalid, ErrInvalidConfig, msg, cause).WithDetail("field", field)
	}
	if c.Volume == "" {
		return invalid("volume", "volume root is required", nil)
	}
	if c.Layout.BlobDir == "" || c.Layout.Extension == "" || c.Layout.Override == "" || c.Layout.PanelDir == "" {
		return invalid("layout", "layout entries must not be empty", nil)
	}
	if _, err := c.PriorityList(); err != nil {
		return invalid("priority", "invalid priority list", err)
	}
	if c.Headroom < 0 {
		return invalid("headroom", "headroom must not be negative", nil)
	}
	if c.MaxArtifactSize < fdt.HeaderSize {
		return invalid("max_artifact_size", "max artifact size is below the header size", nil)
	}
	if _, err := inventory.EncodeVersion(c.Version); err != nil {
		return invalid("version", "invalid component version", err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "invalid log level", err)
	}
	return nil
}

// PriorityList 解析配置中的优先级列表
func (c *Config) PriorityList() (chid.PriorityList, error) {
	return chid.ParsePriority(c.Priority)
}

// SearchPaths 配置文件搜索路径
func SearchPaths() []string {
	paths := []string{".", "./config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dtbloader"))
	}
	return append(paths, "/etc/dtbloader")
}

// SetDefaults 把 DefaultConfig 写入 viper 的默认值层
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("volume", d.Volume)
	v.SetDefault("layout.blob_dir", d.Layout.BlobDir)
	v.SetDefault("layout.extension", d.Layout.Extension)
	v.SetDefault("layout.override", d.Layout.Override)
	v.SetDefault("layout.panel_dir", d.Layout.PanelDir)
	v.SetDefault("priority", d.Priority)
	v.SetDefault("headroom", d.Headroom)
	v.SetDefault("max_artifact_size", d.MaxArtifactSize)
	v.SetDefault("efivars_dir", d.EfivarsDir)
	v.SetDefault("inventory_file", d.InventoryFile)
	v.SetDefault("version", d.Version)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// LoadConfig reads configuration into v (a fresh instance when nil).
//
// When path is empty the file "dtbloader.{yaml,json,toml}" is looked up in
// SearchPaths; a missing file is not an error. Environment variables with
// the DTBLOADER_ prefix override file values, e.g. DTBLOADER_LAYOUT_BLOB_DIR.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, newError(Invalid, ErrInvalidConfig, "failed to read config", err).
				WithDetail("search_paths", SearchPaths())
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, newError(Invalid, ErrInvalidConfig, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

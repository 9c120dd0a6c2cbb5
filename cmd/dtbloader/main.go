// Command dtbloader computes the hardware identifiers of this machine and
// selects, prepares and activates the matching device tree blob.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/darkit/dtbloader"
	"github.com/darkit/dtbloader/chid"
	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/smbios"
)

var (
	// 全局参数
	verbose      bool
	configPath   string
	identityPath string

	logger *zap.Logger
	cfg    *dtbloader.Config
)

// 平台相关的依赖，测试中替换
var (
	identitySource = smbios.Default
	varStore       = func(dir string) efivar.Store {
		if dir == "" {
			return efivar.Default()
		}
		if efivar.Mounted(dir) {
			return efivar.Efivarfs{Dir: dir}
		}
		return efivar.NewMemory()
	}
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "dtbloader",
		Short:         "Select and activate a device tree by hardware identity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = dtbloader.LoadConfig(v, configPath)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if verbose {
				level = "debug"
			}
			logger, err = dtbloader.NewLogger(level, cfg.Log.Development)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default: search dtbloader.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&identityPath, "identity", "", "read the identity record from a YAML file instead of SMBIOS")
	flags.String("volume", "", "volume root holding dtb/ and the override file")
	flags.StringSlice("priority", nil, "variant priority, most specific first (e.g. HardwareID-3,HardwareID-9)")
	flags.Int("headroom", 0, "bytes of patch headroom added to the loaded blob")
	flags.String("efivars", "", "efivarfs mount point")
	flags.String("inventory", "", "inventory file recording the loader version")
	bindFlags(v, flags, map[string]string{
		"volume":         "volume",
		"priority":       "priority",
		"headroom":       "headroom",
		"efivars_dir":    "efivars",
		"inventory_file": "inventory",
	})

	root.AddCommand(newHwidsCmd(), newResolveCmd(), newBootCmd(), newInstallCmd())
	return root
}

// bindFlags 把命令行参数绑定到配置键，参数优先于文件与环境变量
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// loadIdentity 读取身份记录：--identity 文件优先，否则读取平台 SMBIOS
func loadIdentity() (chid.Record, error) {
	if identityPath == "" {
		return identitySource().Identity()
	}
	data, err := os.ReadFile(identityPath)
	if err != nil {
		return chid.Record{}, err
	}
	var rec chid.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return chid.Record{}, fmt.Errorf("decode %s: %w", identityPath, err)
	}
	return rec, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

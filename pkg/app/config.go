package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，PROCTOR_PROCTOR_PORT 对应 proctor.port
const EnvPrefix = "PROCTOR"

var (
	configPath string
	logPath    string
)

// LoadConfig 从命令行、环境变量与配置文件加载配置
// 优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. 默认值
func LoadConfig(target any, opts ...config.Option) error {
	return LoadConfigFrom(pflag.CommandLine, os.Args[1:], target, opts...)
}

// LoadConfigFrom 使用指定的 FlagSet 与参数加载配置
func LoadConfigFrom(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) error {
	execDir, err := GetExecDir()
	if err != nil {
		return errors.Wrap(err, "failed to get executable directory")
	}

	defaultConfig := filepath.Join(execDir, "config.yaml")
	defaultLog := filepath.Join(execDir, "logs", "proctor.log")

	if fs.Lookup("config") == nil {
		fs.StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	}
	if fs.Lookup("log.path") == nil {
		fs.StringVar(&logPath, "log.path", defaultLog, "output path for logs")
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return errors.Wrap(err, "parse flags")
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Flag 显式指定 > 环境变量 PROCTOR_CONFIG > 默认路径
	finalConfigPath, _ := fs.GetString("config")
	if !fs.Changed("config") {
		if envConfig := os.Getenv(EnvPrefix + "_CONFIG"); envConfig != "" {
			finalConfigPath = envConfig
		}
	}
	configPath = finalConfigPath

	v.SetDefault("log.output_path", defaultLog)
	if fs.Changed("log.path") {
		p, _ := fs.GetString("log.path")
		v.Set("log.output_path", p)
	}

	mgr := config.NewManager(append(opts, config.WithViper(v))...)
	if err := mgr.LoadFile(configPath); err != nil {
		return err
	}
	if err := mgr.Unmarshal(target); err != nil {
		return err
	}

	logPath = v.GetString("log.output_path")
	if v.GetBool("log.enable_file") {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return errors.Wrapf(err, "create log directory for %s", logPath)
		}
	}

	return nil
}

// GetExecDir 获取可执行文件所在目录（处理符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}

// GetConfigPath 返回最终使用的配置文件路径
func GetConfigPath() string {
	return configPath
}

// GetLogPath 返回最终生效的日志路径
func GetLogPath() string {
	return logPath
}

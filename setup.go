package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/nodiak/transport"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// storeFlags maps command line flags to their configuration keys.
var storeFlags = map[string]string{
	"host":  "store.host",
	"port":  "store.port",
	"hosts": "store.hosts",
	"tls":   "store.tls",
}

func setupFlagSet(fs *pflag.FlagSet) {
	fs.StringP("file", "f", "", "the configuration file to use.  Overrides the search path.")
	fs.BoolP("debug", "d", false, "enables debug logging.  Overrides configuration.")
	fs.BoolP("version", "v", false, "print version and exit")
	fs.StringP("output", "o", "table", "output format: table, json or yaml")

	fs.String("host", transport.DefaultHost, "store host")
	fs.Int("port", transport.DefaultPort, "store port")
	fs.StringSlice("hosts", nil, "host:port pairs of the store nodes.  Overrides host and port.")
	fs.Bool("tls", false, "use https")
}

func setup(fs *pflag.FlagSet) (*viper.Viper, *zap.Logger, error) {
	l := zap.NewNop()

	v := viper.New()
	v.SetEnvPrefix(applicationName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.outputPaths", []string{"stderr"})
	v.SetDefault("logging.errorOutputPaths", []string{"stderr"})

	for name, key := range storeFlags {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return v, l, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	var err error
	if file, _ := fs.GetString("file"); len(file) > 0 {
		v.SetConfigFile(file)
		err = v.ReadInConfig()
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
		v.AddConfigPath(".")
		err = v.ReadInConfig()

		// the search path is optional, flags and defaults are enough
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			err = nil
		}
	}
	if err != nil {
		return v, l, fmt.Errorf("failed to read config file: %w", err)
	}

	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("logging.level", "DEBUG")
	}

	var c sallust.Config
	err = v.UnmarshalKey("logging", &c, arrange.ComposeDecodeHooks(sallust.DecodeHook))
	if err != nil {
		return v, l, err
	}

	l, err = c.Build()
	return v, l, err
}

func printVersionInfo() {
	fmt.Fprintf(os.Stdout, "%s:\n", applicationName)
	fmt.Fprintf(os.Stdout, "  version: \t%s\n", Version)
	fmt.Fprintf(os.Stdout, "  go version: \t%s\n", runtime.Version())
	fmt.Fprintf(os.Stdout, "  built time: \t%s\n", BuildTime)
	fmt.Fprintf(os.Stdout, "  git commit: \t%s\n", GitCommit)
	fmt.Fprintf(os.Stdout, "  os/arch: \t%s/%s\n", runtime.GOOS, runtime.GOARCH)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"intel-registry/sdk/go/intelreg"
)

// cli 保存根命令解析出的全局设置。
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "intelctl",
		Short: "Command line client for the intel proof registry",
		Long: `intelctl talks to an inteld instance over its REST API.

Settings are resolved from flags, then INTELCTL_* environment variables,
then the optional config file.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.String("server", "http://127.0.0.1:8080", "registry API base URL")
	flags.String("caller", "", "caller identity sent with mutating requests")
	flags.String("identity-header", intelreg.DefaultIdentityHeader, "header carrying the caller identity")
	flags.StringP("output", "o", "json", "output format: json or yaml")
	for _, name := range []string{"config", "server", "caller", "identity-header", "output"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newRegisterCmd(c),
		newGetCmd(c),
		newAttestCmd(c),
		newRefuteCmd(c),
		newVerifyCmd(c),
		newRecentCmd(c),
		newIntelCmd(c),
		newSourceCmd(c),
		newStatsCmd(c),
		newOwnerCmd(c),
		newProofTypesCmd(c),
		newWatchCmd(c),
	)
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("INTELCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	c.v.AutomaticEnv()
	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (c *cli) client() (*intelreg.Client, error) {
	client, err := intelreg.NewClient(c.v.GetString("server"), nil)
	if err != nil {
		return nil, err
	}
	client.SetIdentityHeader(c.v.GetString("identity-header"))
	client.SetCaller(c.v.GetString("caller"))
	return client, nil
}

func (c *cli) print(w io.Writer, v any) error {
	switch strings.ToLower(c.v.GetString("output")) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", c.v.GetString("output"))
	}
}

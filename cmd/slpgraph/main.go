package main

import (
	"encoding/json"
	"fmt"
	"os"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	config := LoadConfig()
	var remote string

	// define root command
	rootCmd := &cobra.Command{
		Use:   "slpgraph",
		Short: "Token lineage graphs for SLP tokens",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// flags default to the loaded config, so only flags given override it
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&config.Core.RPCHost, "rpc-host", config.Core.RPCHost, "Full node RPC host")
	flags.IntVar(&config.Core.RPCPort, "rpc-port", config.Core.RPCPort, "Full node RPC port")
	flags.StringVar(&config.Core.RPCUser, "rpc-user", config.Core.RPCUser, "Full node RPC user")
	flags.StringVar(&config.Core.RPCPass, "rpc-pass", config.Core.RPCPass, "Full node RPC password")
	flags.IntVar(&config.Core.ZMQPort, "zmq-port", config.Core.ZMQPort, "Full node ZMQ port")
	flags.StringVar(&config.BitDB.URL, "bitdb-url", config.BitDB.URL, "BitDB query endpoint")
	flags.IntVar(&config.Graph.Workers, "workers", config.Graph.Workers, "Transactions visited concurrently per token")
	flags.StringSliceVar(&config.Graph.Tokens, "token", config.Graph.Tokens, "Genesis txid of a token to track (repeatable)")
	flags.StringVar(&config.Store.DBFile, "store-db-file", config.Store.DBFile, "SQLite checkpoint file")
	flags.StringVar(&config.Store.PostgresDSN, "store-postgres", config.Store.PostgresDSN, "Postgres DSN for checkpoints, instead of the SQLite file")
	flags.StringVar(&config.WebAPI.Port, "webapi-port", config.WebAPI.Port, "Web API port")
	flags.StringVar(&config.WebAPI.Bind, "webapi-bind", config.WebAPI.Bind, "Web API bind")
	flags.StringVar(&remote, "remote", "", "Base URL of a running slpgraph server, for client commands")
	viper.BindPFlags(flags)

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Track the configured tokens and serve their graphs",
		Run: func(cmd *cobra.Command, args []string) {
			Server(*config)
		},
	}

	var printGraph bool
	extendCmd := &cobra.Command{
		Use:   "extend <genesis-txid>",
		Short: "Build one token graph from its issuance and print its statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Extend(cmd.Context(), *config, args[0], printGraph)
		},
	}
	extendCmd.Flags().BoolVar(&printGraph, "graph", false, "Print the whole graph instead of the statistics")

	statsCmd := &cobra.Command{
		Use:   "stats <token-id>",
		Short: "Print a token's statistics from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return GetStats(*config, remote, args[0])
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh <token-id>",
		Short: "Ask a running server to rebuild (and track) a token's graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Refresh(*config, remote, args[0])
		},
	}

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	rootCmd.AddCommand(serverCmd, extendCmd, statsCmd, refreshCmd, configCmd)

	// Execute the Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// LoadConfig applies defaults and SLPGRAPH_* environment overrides,
// then the first config file found (config.toml, or $SLPGRAPH_ENV.toml)
// in ., /etc/slpgraph or ~/.slpgraph.
func LoadConfig() *slpg.Config {
	config, err := slpg.LoadConfig("")
	if err != nil {
		fmt.Println("invalid config defaults: ", err)
		os.Exit(1)
	}

	configFileName, set := os.LookupEnv("SLPGRAPH_ENV")
	if set {
		viper.SetConfigName(configFileName)
	} else {
		viper.SetConfigName("config")
	}

	// Set config file name and search paths
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/slpgraph/")
	viper.AddConfigPath("$HOME/.slpgraph")

	if err := viper.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			fmt.Println("failed to read config file: ", err)
			os.Exit(1)
		}
		return &config
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %s", err))
	}
	return &config
}

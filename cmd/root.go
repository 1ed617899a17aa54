package cmd

import (
	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "omniarb",
	Short: "A DEX arbitrage scanner",
	Long: `omniarb quotes token pairs across decentralized exchanges, detects
pairwise spreads and profitable multi-hop cycles, ranks them by risk-adjusted
return and allocates capital to the best of them every scan cycle.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or YAML (default is $HOME/.omniarb.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the config (default is ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	log := utils.InitLogger(debug)

	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadEnv(files...); err != nil {
		log.Warn("Failed to load env file", zap.Error(err))
	}
}

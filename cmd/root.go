package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "staking-engine",
	Short: "Weighted staking rewards, batch settlement and ledger reconciliation",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().StringP(config.ChainKey, "c", string(config.Chain_Base), "The chain to use (base, base_sepolia)")

	rootCmd.PersistentFlags().StringSlice(config.EthereumRpcBaseUrls, []string{}, `Comma separated JSON-RPC urls, tried in order, e.g. "https://mainnet.base.org"`)
	rootCmd.PersistentFlags().Uint64(config.EthereumChainId, 0, `Chain id used for signing (defaults from --chain)`)

	rootCmd.PersistentFlags().String(config.OperatorPrivateKey, "", `Hex private key of the operator wallet`)
	rootCmd.PersistentFlags().String(config.OperatorAddress, "", `Operator wallet address, only used when no key is set`)

	rootCmd.PersistentFlags().String(config.TokensPrimaryAddress, "", `Primary staking token address`)
	rootCmd.PersistentFlags().String(config.TokensBoostedAddress, "", `Boosted staking token address`)
	rootCmd.PersistentFlags().String(config.TokensDisperseAddress, "", `Batch transfer contract address`)
	rootCmd.PersistentFlags().String(config.TokensPoolWallet, "", `Wallet that receives stake deposits`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "staking", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "staking", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL ssl mode (disable, require, verify-ca, verify-full)`)

	rootCmd.PersistentFlags().Duration(config.ConfirmationInterval, 0, `Delay between receipt reads (default 2s)`)
	rootCmd.PersistentFlags().Int(config.ConfirmationMaxAttempts, 0, `Receipt reads before a wait times out (default 60)`)

	rootCmd.PersistentFlags().String(config.RecoveryPendingStorePath, "", `Directory of the durable pending log (default "./pending")`)
	rootCmd.PersistentFlags().Duration(config.RecoveryCutoff, 0, `Age after which a pending entry is abandoned (default 24h)`)
	rootCmd.PersistentFlags().String(config.RecoverySweepSchedule, "", `Cron schedule of the recovery sweep (default "@every 1m")`)
	rootCmd.PersistentFlags().Int(config.RecoveryMaxRecordRetries, 0, `Ledger write attempts per record (default 5)`)
	rootCmd.PersistentFlags().Duration(config.RecoveryBaseBackoff, 0, `First ledger retry delay, doubled per attempt (default 1s)`)

	rootCmd.PersistentFlags().String(config.DistributionSchedule, "", `Cron schedule of distribution runs, e.g. "0 12 * * *"; empty disables`)

	rootCmd.PersistentFlags().String(config.PriceOraclePrimaryUrl, "", `Primary price url template (default dexscreener)`)
	rootCmd.PersistentFlags().String(config.PriceOracleFallbackUrl, "", `Fallback price url template (default geckoterminal)`)
	rootCmd.PersistentFlags().Duration(config.PriceOracleCacheTtl, 0, `How long a fetched price may be reused (default 30m)`)
	rootCmd.PersistentFlags().Float64(config.PriceOracleRequestsPerS, 1, `Requests per second per price source`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(settleUnstakesCmd)
	rootCmd.AddCommand(stakeCmd)
	rootCmd.AddCommand(unstakeCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	planCmd.PersistentFlags().String(config.PlanOutputFile, "", "Write the planned outcomes as CSV to this path instead of stdout")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// bindCommandFlags binds a subcommand's local flags the same way the root flags are bound.
func bindCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/session"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/staking"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Verify a deposit transaction and record the stake it created",
	Run: func(cmd *cobra.Command, args []string) {
		req, err := depositRequestFromFlags(cmd)
		if err != nil {
			fmt.Println(err)
			return
		}
		e, ctx := mustEngine(true)
		defer e.close()

		sess, err := session.NewSession(ctx, req.Wallet, e.logger)
		if err != nil {
			e.logger.Sugar().Fatalw("Invalid wallet", zap.Error(err))
		}
		defer sess.Close()

		var result *staking.DepositResult
		err = sess.Run(session.Action_Stake, func(ctx context.Context) error {
			var err error
			result, err = e.staker.Stake(ctx, req)
			return err
		})
		if result != nil {
			fmt.Printf("Stake:  %s\nTx:     %s\nStatus: %s %s\n", result.StakeId, result.TxHash, result.Status, result.Result)
		}
		if err != nil {
			e.logger.Sugar().Fatalw("Stake failed", zap.Error(err))
		}
	},
}

var unstakeCmd = &cobra.Command{
	Use:   "unstake",
	Short: "Queue a whole stake for return, subject to pool liquidity",
	Run: func(cmd *cobra.Command, args []string) {
		wallet, _ := cmd.Flags().GetString("wallet")
		stakeId, _ := cmd.Flags().GetString("stake-id")
		if stakeId == "" {
			fmt.Println("--stake-id is required")
			return
		}
		e, ctx := mustEngine(true)
		defer e.close()

		sess, err := session.NewSession(ctx, wallet, e.logger)
		if err != nil {
			e.logger.Sugar().Fatalw("Invalid wallet", zap.Error(err))
		}
		defer sess.Close()

		var unstake *stakeLedger.PendingUnstake
		err = sess.Run(session.Action_Unstake, func(ctx context.Context) error {
			var err error
			unstake, err = e.unstakes.Request(ctx, sess.Wallet, stakeId)
			return err
		})
		if err != nil {
			e.logger.Sugar().Fatalw("Unstake rejected", zap.Error(err))
		}
		fmt.Printf("Pending unstake %s: %s %s\n", unstake.Id, numbers.ToTokenUnits(unstake.Amount).String(), unstake.Token)
	},
}

func init() {
	stakeCmd.Flags().String("tx-hash", "", "Deposit transaction hash")
	stakeCmd.Flags().String("wallet", "", "Depositing wallet")
	stakeCmd.Flags().String("token", string(stakeLedger.TokenClass_Primary), "Token class (primary, boosted)")
	stakeCmd.Flags().String("amount", "", "Deposited amount in smallest units")
	stakeCmd.Flags().String("policy", string(stakeLedger.PolicyKind_Keep), "Reward policy (keep, philanthropy, reinvest, split)")
	stakeCmd.Flags().String("org-wallet", "", "Org wallet for philanthropy or split policies")
	stakeCmd.Flags().String("split", "", `Split percentages "keep,org,reinvest"; empty uses the period default`)
	stakeCmd.Flags().Bool("auto-stake", false, "Compound every reward into the stake")

	unstakeCmd.Flags().String("wallet", "", "Stake owner")
	unstakeCmd.Flags().String("stake-id", "", "Stake to unstake")
}

func depositRequestFromFlags(cmd *cobra.Command) (*staking.DepositRequest, error) {
	flags := cmd.Flags()
	txHash, _ := flags.GetString("tx-hash")
	wallet, _ := flags.GetString("wallet")
	token, _ := flags.GetString("token")
	amount, _ := flags.GetString("amount")
	policy, _ := flags.GetString("policy")
	org, _ := flags.GetString("org-wallet")
	split, _ := flags.GetString("split")
	autoStake, _ := flags.GetBool("auto-stake")

	class, err := stakeLedger.ParseTokenClass(token)
	if err != nil {
		return nil, err
	}
	value, err := numbers.ParseUint256(amount)
	if err != nil {
		return nil, err
	}
	p := stakeLedger.RedirectPolicy{Kind: stakeLedger.PolicyKind(policy), OrgWallet: org}
	if split != "" {
		pct, err := parseSplit(split)
		if err != nil {
			return nil, err
		}
		p.Split = pct
	}
	return &staking.DepositRequest{
		TxHash:    txHash,
		Wallet:    wallet,
		Token:     class,
		Amount:    value,
		Policy:    p,
		AutoStake: autoStake,
	}, nil
}

func parseSplit(s string) (stakeLedger.SplitPct, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return stakeLedger.SplitPct{}, fmt.Errorf("%w: expected keep,org,reinvest", stakeLedger.ErrInvalidSplit)
	}
	values := make([]uint8, 3)
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return stakeLedger.SplitPct{}, fmt.Errorf("%w: '%s'", stakeLedger.ErrInvalidSplit, part)
		}
		values[i] = uint8(v)
	}
	pct := stakeLedger.SplitPct{Keep: values[0], Org: values[1], Reinvest: values[2]}
	return pct, pct.Validate()
}

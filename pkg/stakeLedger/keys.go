package stakeLedger

import (
	"fmt"

	"github.com/google/uuid"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://inclawbate.com/staking"))

// StakeIdForDeposit derives the stake id created by a deposit, so replaying the deposit
// can never create a second stake.
func StakeIdForDeposit(txHash string) string {
	return uuid.NewSHA1(keyNamespace, []byte("deposit:"+txHash)).String()
}

// CompoundKey is the synthetic funding key of an auto-stake compound for one run and stake.
func CompoundKey(runNumber uint64, stakeId string) string {
	return "compound:" + uuid.NewSHA1(keyNamespace, []byte(fmt.Sprintf("%d:%s", runNumber, stakeId))).String()
}

// RunKey is the synthetic funding key of a run that produced no transfer transaction.
func RunKey(runNumber uint64) string {
	return fmt.Sprintf("run:%d", runNumber)
}

func NewPendingUnstakeId() string {
	return uuid.NewString()
}

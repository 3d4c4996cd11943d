package stakeLedger

import (
	"fmt"
	"strings"

	"github.com/inclawbate/staking-engine/internal/utils"
)

type PolicyKind string

const (
	PolicyKind_Keep         PolicyKind = "keep"
	PolicyKind_Philanthropy PolicyKind = "philanthropy"
	PolicyKind_Reinvest     PolicyKind = "reinvest"
	PolicyKind_Split        PolicyKind = "split"
)

type SplitPct struct {
	Keep     uint8
	Org      uint8
	Reinvest uint8
}

var DefaultSplitPct = SplitPct{Keep: 100}

func (s SplitPct) IsZero() bool {
	return s.Keep == 0 && s.Org == 0 && s.Reinvest == 0
}

func (s SplitPct) Validate() error {
	if int(s.Keep)+int(s.Org)+int(s.Reinvest) != 100 {
		return fmt.Errorf("%w: keep %d + org %d + reinvest %d != 100", ErrInvalidSplit, s.Keep, s.Org, s.Reinvest)
	}
	return nil
}

// RedirectPolicy decides where a stake's reward share goes.
type RedirectPolicy struct {
	Kind PolicyKind
	// OrgWallet receives philanthropy payouts and the org part of a split.
	OrgWallet string `json:",omitempty"`
	// Split percentages. A zero value on a Split policy means the period default applies.
	Split SplitPct
}

func KeepPolicy() RedirectPolicy {
	return RedirectPolicy{Kind: PolicyKind_Keep}
}

func PhilanthropyPolicy(org string) RedirectPolicy {
	return RedirectPolicy{Kind: PolicyKind_Philanthropy, OrgWallet: org}
}

func ReinvestPolicy() RedirectPolicy {
	return RedirectPolicy{Kind: PolicyKind_Reinvest}
}

func SplitPolicy(keep, org, reinvest uint8, orgWallet string) RedirectPolicy {
	return RedirectPolicy{
		Kind:      PolicyKind_Split,
		OrgWallet: orgWallet,
		Split:     SplitPct{Keep: keep, Org: org, Reinvest: reinvest},
	}
}

// EffectiveSplit resolves the percentages used for a Split stake.
func (p RedirectPolicy) EffectiveSplit(periodDefault SplitPct) SplitPct {
	if p.Split.IsZero() {
		return periodDefault
	}
	return p.Split
}

func (p RedirectPolicy) Validate() error {
	switch p.Kind {
	case "", PolicyKind_Keep, PolicyKind_Reinvest:
		return nil
	case PolicyKind_Philanthropy:
		if !utils.IsValidAddress(p.OrgWallet) {
			return fmt.Errorf("%w: philanthropy requires an org wallet", ErrInvalidSplit)
		}
		return nil
	case PolicyKind_Split:
		if p.Split.IsZero() {
			// period default, org wallet checked at plan time
			return nil
		}
		if err := p.Split.Validate(); err != nil {
			return err
		}
		if p.Split.Org > 0 && !utils.IsValidAddress(p.OrgWallet) {
			return fmt.Errorf("%w: split with an org share requires an org wallet", ErrInvalidSplit)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown policy '%s'", ErrInvalidSplit, p.Kind)
	}
}

func (p RedirectPolicy) Normalized() RedirectPolicy {
	if p.Kind == "" {
		p.Kind = PolicyKind_Keep
	}
	p.OrgWallet = strings.ToLower(p.OrgWallet)
	return p
}

package risk

// resolveAction implements spec §4.2's action resolution rule over a set of
// verdicts:
//   - No verdicts -> ActionNotify with Allow=true.
//   - If any verdict is ActionReject, the resolved action is ActionReject
//     and the order is never allowed.
//   - If the strongest verdict is ActionReduceOnly, it is demoted to
//     ActionWarn (Allow=true) when the order does not increase the account's
//     absolute exposure on the affected symbol; when it does increase
//     exposure, reduce-only enforcement holds at ActionReduceOnly with
//     Allow=false — the order only passes reduce-only if it strictly
//     shrinks the position.
//   - Otherwise the resolved action is the maximum action across verdicts by
//     total order NOTIFY < WARN < REDUCE_ONLY < REJECT.
//
// Allow is true for every action except ActionReject and an
// exposure-increasing ActionReduceOnly.
func resolveAction(verdicts []Verdict, increasesExposure bool) Evaluation {
	if len(verdicts) == 0 {
		return Evaluation{ResolvedAction: ActionNotify, Allow: true}
	}

	strongest := ActionNotify
	for _, v := range verdicts {
		if v.Action > strongest {
			strongest = v.Action
		}
	}

	if strongest == ActionReject {
		return Evaluation{Verdicts: verdicts, ResolvedAction: ActionReject, Allow: false}
	}

	if strongest == ActionReduceOnly {
		if !increasesExposure {
			return Evaluation{Verdicts: verdicts, ResolvedAction: ActionWarn, Allow: true}
		}
		return Evaluation{Verdicts: verdicts, ResolvedAction: ActionReduceOnly, Allow: false}
	}

	return Evaluation{Verdicts: verdicts, ResolvedAction: strongest, Allow: true}
}

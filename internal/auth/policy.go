package auth

// Admission is the policy outcome computed for a new registrant. It is
// resolved as a whole and applied to the account as one field-set update,
// never merged piecemeal.
type Admission struct {
	Rank            Rank
	WhitelistStatus WhitelistStatus

	IsDispatch   bool
	IsLeo        bool
	IsEmsFd      bool
	IsSupervisor bool
	IsTow        bool
}

// ResolveAdmission computes the initial rank, whitelist status and
// capability flags for a registrant.
//
// The first account of a deployment becomes the owner: every capability,
// ACCEPTED status. Everyone else is a standard user whose status follows
// the CAD's whitelist flag and whose tow capability is withheld when the
// deployment tow-whitelists.
func ResolveAdmission(firstAccount bool, cad *Cad) Admission {
	if firstAccount {
		return Admission{
			Rank:            RankOwner,
			WhitelistStatus: WhitelistAccepted,
			IsDispatch:      true,
			IsLeo:           true,
			IsEmsFd:         true,
			IsSupervisor:    true,
			IsTow:           true,
		}
	}

	status := WhitelistAccepted
	if cad.Whitelisted {
		status = WhitelistPending
	}

	return Admission{
		Rank:            RankUser,
		WhitelistStatus: status,
		IsTow:           !cad.TowWhitelisted,
	}
}

// Pending reports whether this outcome leaves the account awaiting
// whitelist approval.
func (a Admission) Pending() bool {
	return a.Rank == RankUser && a.WhitelistStatus == WhitelistPending
}

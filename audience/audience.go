// Package audience implements the audience filter: deciding whether one
// caller should receive one targeted update, given the update's target-set
// and the caller's identifying attributes.
package audience

import "github.com/atlasdevji/prowhey-middleware/entity"

// TargetSet is the list of targeting fields carried by a notification or
// announcement journal entry.
type TargetSet struct {
	TargetUsers         []string
	TargetGroups        []string
	TargetRegions       []string
	TargetProvinces     []string
	TargetCities        []string
	TargetDevices       []string
	TargetNonRegistered bool
}

// TargetSetFromJournalEntry lifts the audience fields out of a journal entry.
func TargetSetFromJournalEntry(e entity.JournalEntry) TargetSet {
	return TargetSet{
		TargetUsers:         e.TargetUsers,
		TargetGroups:        e.TargetGroups,
		TargetRegions:       e.TargetRegions,
		TargetProvinces:     e.TargetProvinces,
		TargetCities:        e.TargetCities,
		TargetDevices:       e.TargetDevices,
		TargetNonRegistered: e.TargetNonRegistered,
	}
}

// Message is the narrower targeting shape for `message` entries: a single
// owning user id plus a soft-delete flag, rather than a disjunctive target-set.
type Message struct {
	OwnerUserID string
	Deleted     bool
}

// Matches evaluates ts against caller using the nine-step disjunctive-any
// order, first match wins. A nil caller always excludes.
func Matches(ts TargetSet, caller *entity.CallerContext) bool {
	if caller == nil {
		return false
	}

	if ts.TargetNonRegistered && !caller.IsRegistered {
		return true
	}
	if contains(ts.TargetDevices, caller.UserDeviceID) {
		return true
	}
	if contains(ts.TargetProvinces, caller.UserProvince) {
		return true
	}
	if contains(ts.TargetCities, caller.UserCity) {
		return true
	}
	if contains(ts.TargetUsers, caller.UserID) {
		return true
	}
	if contains(ts.TargetGroups, "all") || intersects(caller.UserGroups, ts.TargetGroups) {
		return true
	}
	if contains(ts.TargetRegions, "all") ||
		contains(ts.TargetRegions, caller.UserRegion) ||
		contains(ts.TargetRegions, caller.UserProvince) ||
		contains(ts.TargetRegions, caller.UserCity) {
		return true
	}
	if isBroadcast(ts) {
		return true
	}
	return false
}

// MatchesMessage evaluates the simpler message rule: the caller must own the
// message and it must not be soft-deleted.
func MatchesMessage(msg Message, caller *entity.CallerContext) bool {
	if caller == nil {
		return false
	}
	if msg.Deleted {
		return false
	}
	return msg.OwnerUserID == caller.UserID
}

// SafeMatches wraps Matches with the fail-safe-exclude guarantee: any panic
// evaluating a malformed target-set resolves to exclusion for that one entry
// rather than failing the whole sync batch.
func SafeMatches(ts TargetSet, caller *entity.CallerContext) (include bool) {
	defer func() {
		if recover() != nil {
			include = false
		}
	}()
	return Matches(ts, caller)
}

func isBroadcast(ts TargetSet) bool {
	return len(ts.TargetUsers) == 0 &&
		len(ts.TargetGroups) == 0 &&
		len(ts.TargetRegions) == 0 &&
		len(ts.TargetProvinces) == 0 &&
		len(ts.TargetCities) == 0 &&
		len(ts.TargetDevices) == 0 &&
		!ts.TargetNonRegistered
}

func contains(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

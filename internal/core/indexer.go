package core

import (
	"github.com/drivetidy/drivetidy/internal/model"
)

// Index groups records by content fingerprint and returns every group with
// at least two members. Within a set, members keep their input order, so the
// first record seen for a fingerprint is always the representative.
// Sets come out in the order their fingerprint was first seen.
func Index(records []model.FileRecord) []model.DuplicateSet {
	groups := make(map[string][]model.FileRecord)
	var order []string

	for _, r := range records {
		if _, ok := groups[r.Fingerprint]; !ok {
			order = append(order, r.Fingerprint)
		}
		groups[r.Fingerprint] = append(groups[r.Fingerprint], r)
	}

	var sets []model.DuplicateSet
	for _, fp := range order {
		members := groups[fp]
		if len(members) < 2 {
			continue
		}
		sets = append(sets, model.DuplicateSet{
			Fingerprint: fp,
			Members:     members,
		})
	}
	return sets
}

// RemovalTargets flattens the non-representative members of every set.
func RemovalTargets(sets []model.DuplicateSet) []model.FileRecord {
	var targets []model.FileRecord
	for _, set := range sets {
		targets = append(targets, set.Extras()...)
	}
	return targets
}

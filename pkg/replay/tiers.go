package replay

import (
	"github.com/replaystats/framecol/pkg/errors"
)

// Tier depth constants, one per chain. Depth 0 is the always-present base
// tier; each step is one protocol-version wrapper further down the chain.
const (
	PreTierBase = iota
	PreTierV1_2
	PreTierV1_4
)

const (
	PostTierBase = iota
	PostTierV0_2
	PostTierV2_0
	PostTierV2_1
	PostTierV3_5
	PostTierV3_8
)

const (
	ItemTierBase = iota
	ItemTierV3_2
	ItemTierV3_6
)

const (
	EndTierBase = iota
	EndTierV3_7
)

// TierDepths records, per optional chain, the deepest tier present in a
// batch. Resolved once from frame zero (items: from the first item record
// anywhere in the batch) and trusted for the remainder of the conversion.
type TierDepths struct {
	Pre  int
	Post int
	Item int
	End  int

	// HasStart/HasEnd report whether any start/end blocks exist at all.
	HasStart bool
	HasEnd   bool
	// HasItems reports whether any frame carries a non-empty item list.
	HasItems bool
}

// Resolve inspects a batch and returns the tier depths present.
//
// Presence is structural: a chain's depth is the number of consecutive
// non-nil wrappers hanging off the base record. The result is not
// re-validated per frame; the transform reports a precondition failure if a
// later frame turns out to be shallower than resolved here.
func Resolve(frames []Frame) (TierDepths, error) {
	var d TierDepths

	if len(frames) == 0 {
		return d, errors.New(errors.ErrorTypePrecondition, "empty frame sequence")
	}
	first := frames[0]
	if len(first.Ports) == 0 {
		return d, errors.New(errors.ErrorTypePrecondition, "first frame has no occupied ports")
	}

	d.Pre = preDepth(&first.Ports[0].Leader.Pre)
	d.Post = postDepth(&first.Ports[0].Leader.Post)

	d.HasStart = first.Start != nil
	if first.End != nil {
		d.HasEnd = true
		if first.End.V3_7 != nil {
			d.End = EndTierV3_7
		}
	} else {
		// The end block may only appear on the final frame in some files.
		last := frames[len(frames)-1]
		if last.End != nil {
			d.HasEnd = true
			if last.End.V3_7 != nil {
				d.End = EndTierV3_7
			}
		}
	}

	// Item lists can be empty on early frames, so the item chain is resolved
	// from the first item record found anywhere in the batch.
	for i := range frames {
		if len(frames[i].Items) > 0 {
			d.HasItems = true
			d.Item = itemDepth(&frames[i].Items[0])
			break
		}
	}

	return d, nil
}

func preDepth(pre *Pre) int {
	if pre.V1_2 == nil {
		return PreTierBase
	}
	if pre.V1_2.V1_4 == nil {
		return PreTierV1_2
	}
	return PreTierV1_4
}

func postDepth(post *Post) int {
	if post.V0_2 == nil {
		return PostTierBase
	}
	if post.V0_2.V2_0 == nil {
		return PostTierV0_2
	}
	if post.V0_2.V2_0.V2_1 == nil {
		return PostTierV2_0
	}
	if post.V0_2.V2_0.V2_1.V3_5 == nil {
		return PostTierV2_1
	}
	if post.V0_2.V2_0.V2_1.V3_5.V3_8 == nil {
		return PostTierV3_5
	}
	return PostTierV3_8
}

func itemDepth(item *Item) int {
	if item.V3_2 == nil {
		return ItemTierBase
	}
	if item.V3_2.V3_6 == nil {
		return ItemTierV3_2
	}
	return ItemTierV3_6
}

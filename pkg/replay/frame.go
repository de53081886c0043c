// Package replay defines the in-memory shape of a decoded game-replay batch
// as produced by the upstream event-stream parser, and resolves which
// version-gated field tiers are present for a whole batch.
//
// Fields introduced by later protocol versions hang off each record as a
// linear chain of optional sub-structs: tier k+1 can only be populated when
// tier k is. Presence is uniform across a batch because fields are
// version-locked for the whole file.
package replay

// FirstFrameIndex is the frame index of the first record in every batch.
// Simulation starts counting before the match proper begins.
const FirstFrameIndex int32 = -123

// MaxItems caps the dense item-slot layout used by flat sinks. Variable-length
// item lists are unbounded in principle; no known file exceeds this.
const MaxItems = 16

// Paired-character identifiers. A port whose resident character is one of
// these carries two simultaneous characters, so the source supplies a
// follower sub-record alongside the leader and sinks emit an extra row group
// for the port.
const (
	CharPairedLeader   uint8 = 10
	CharPairedFollower uint8 = 11
)

// HasFollower reports whether the resident character implies follower data.
func HasFollower(character uint8) bool {
	return character == CharPairedLeader || character == CharPairedFollower
}

// Position is a 2D coordinate pair.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Velocity is a 2D velocity pair.
type Velocity struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// TriggersPhysical holds the raw analog trigger positions.
type TriggersPhysical struct {
	L float32 `json:"l"`
	R float32 `json:"r"`
}

// Triggers holds logical and physical trigger state.
type Triggers struct {
	Logical  float32          `json:"logical"`
	Physical TriggersPhysical `json:"physical"`
}

// Buttons holds logical and physical button state.
type Buttons struct {
	Logical  uint32 `json:"logical"`
	Physical uint16 `json:"physical"`
}

// PreV1_4 holds pre-state fields introduced at protocol v1.4.
type PreV1_4 struct {
	Damage float32 `json:"damage"`
}

// PreV1_2 holds pre-state fields introduced at protocol v1.2.
type PreV1_2 struct {
	RawAnalogX uint8    `json:"raw_analog_x"`
	V1_4       *PreV1_4 `json:"v1_4,omitempty"`
}

// Pre is the pre-state block: controller and position state sampled before
// the engine advances the tick.
type Pre struct {
	Position   Position `json:"position"`
	Direction  int8     `json:"direction"`
	Joystick   Position `json:"joystick"`
	Cstick     Position `json:"cstick"`
	Triggers   Triggers `json:"triggers"`
	RandomSeed uint32   `json:"random_seed"`
	Buttons    Buttons  `json:"buttons"`
	State      uint16   `json:"state"`
	V1_2       *PreV1_2 `json:"v1_2,omitempty"`
}

// PostV3_8 holds post-state fields introduced at protocol v3.8.
type PostV3_8 struct {
	Hitlag float32 `json:"hitlag"`
}

// PostV3_5 holds post-state fields introduced at protocol v3.5.
type PostV3_5 struct {
	Autogenous Velocity  `json:"autogenous"`
	Knockback  Velocity  `json:"knockback"`
	V3_8       *PostV3_8 `json:"v3_8,omitempty"`
}

// PostV2_1 holds post-state fields introduced at protocol v2.1.
type PostV2_1 struct {
	HurtboxState uint8     `json:"hurtbox_state"`
	V3_5         *PostV3_5 `json:"v3_5,omitempty"`
}

// PostV2_0 holds post-state fields introduced at protocol v2.0.
// LCancel is tri-state: nil means unattempted, true success, false failure.
type PostV2_0 struct {
	Flags    uint64    `json:"flags"`
	MiscAS   float32   `json:"misc_as"`
	Airborne bool      `json:"airborne"`
	Ground   uint16    `json:"ground"`
	Jumps    uint8     `json:"jumps"`
	LCancel  *bool     `json:"l_cancel,omitempty"`
	V2_1     *PostV2_1 `json:"v2_1,omitempty"`
}

// PostV0_2 holds post-state fields introduced at protocol v0.2.
type PostV0_2 struct {
	StateAge float32   `json:"state_age"`
	V2_0     *PostV2_0 `json:"v2_0,omitempty"`
}

// Post is the post-state block: engine state after the tick resolved.
// LastAttackLanded and LastHitBy are nil when no attack has landed or no
// opponent has connected yet.
type Post struct {
	Position         Position  `json:"position"`
	Direction        int8      `json:"direction"`
	Damage           float32   `json:"damage"`
	Shield           float32   `json:"shield"`
	State            uint16    `json:"state"`
	Character        uint8     `json:"character"`
	LastAttackLanded *uint8    `json:"last_attack_landed,omitempty"`
	ComboCount       uint8     `json:"combo_count"`
	LastHitBy        *uint8    `json:"last_hit_by,omitempty"`
	Stocks           uint8     `json:"stocks"`
	V0_2             *PostV0_2 `json:"v0_2,omitempty"`
}

// PortData pairs the pre- and post-state blocks for one character on a port.
type PortData struct {
	Pre  Pre  `json:"pre"`
	Post Post `json:"post"`
}

// PortFrame is one port's data for one frame. Follower is present only for
// ports resident with a paired character.
type PortFrame struct {
	Leader   PortData  `json:"leader"`
	Follower *PortData `json:"follower,omitempty"`
}

// ItemV3_6 holds item fields introduced at protocol v3.6.
// Owner is nil when the item has no owning port.
type ItemV3_6 struct {
	Owner *uint8 `json:"owner,omitempty"`
}

// ItemV3_2 holds item fields introduced at protocol v3.2. Misc is four raw
// little-endian bytes whose meaning depends on the item type.
type ItemV3_2 struct {
	Misc [4]byte   `json:"misc"`
	V3_6 *ItemV3_6 `json:"v3_6,omitempty"`
}

// Item is one active item on one frame.
type Item struct {
	ID        uint32   `json:"id"`
	Type      uint16   `json:"type"`
	State     uint8    `json:"state"`
	Direction int8     `json:"direction"`
	Position  Position `json:"position"`
	Velocity  Velocity `json:"velocity"`
	Damage    uint16   `json:"damage"`
	Timer     float32  `json:"timer"`
	V3_2      *ItemV3_2 `json:"v3_2,omitempty"`
}

// Start is the per-frame start block (protocol v2.2 and later).
type Start struct {
	RandomSeed uint32 `json:"random_seed"`
}

// EndV3_7 holds end-block fields introduced at protocol v3.7.
type EndV3_7 struct {
	LatestFinalizedFrame int32 `json:"latest_finalized_frame"`
}

// End is the per-frame end block. The base tier carries no fields.
type End struct {
	V3_7 *EndV3_7 `json:"v3_7,omitempty"`
}

// Frame is one simulation tick: every occupied port's state, plus optional
// start/end blocks and the frame's active-item list.
type Frame struct {
	Ports []PortFrame `json:"ports"`
	Start *Start      `json:"start,omitempty"`
	End   *End        `json:"end,omitempty"`
	Items []Item      `json:"items,omitempty"`
}

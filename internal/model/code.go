package model

import (
	"time"
)

// CodeCapacity is the number of users a code pairs.
const CodeCapacity = 2

type Code struct {
	ID        int64     `db:"id" json:"id"`
	Value     string    `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CodeListing is a code with its current membership count, for admin display.
type CodeListing struct {
	Code
	MemberCount int `db:"member_count" json:"memberCount"`
}

func (c CodeListing) State() CodeState {
	return StateFor(c.MemberCount)
}

func StateFor(memberCount int) CodeState {
	if memberCount >= CodeCapacity {
		return CodeStatePaired
	}
	return CodeStateOpen
}

type Member struct {
	CodeID  int64     `db:"code_id" json:"codeId"`
	UserID  int64     `db:"user_id" json:"userId"`
	Slot    int       `db:"slot" json:"slot"`
	BoundAt time.Time `db:"bound_at" json:"boundAt"`
}

// BindResult reports what a bind did. Slot is set only for BindOutcomeBound.
type BindResult struct {
	Outcome BindOutcome
	Slot    int
}

// Completion is the pair formed when a code takes its second member, in slot order.
type Completion struct {
	Code Code
	Pair [CodeCapacity]User
}

func (c Completion) Emails() []string {
	return []string{c.Pair[0].Email, c.Pair[1].Email}
}

func (c Completion) Logins() []string {
	return []string{c.Pair[0].Login, c.Pair[1].Login}
}

package app

import "fmt"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(group GroupName, member Member) BackpressureAction
}

// DropPolicy drops the frame for the slow member and keeps it connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(GroupName, Member) BackpressureAction { return DropFrame }

// KickPolicy disconnects slow members; their clients reconnect and reload.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(GroupName, Member) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}

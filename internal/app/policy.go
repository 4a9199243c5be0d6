package app

import (
	"fmt"

	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/core"
)

type BackpressureAction int

const (
	DropMessage BackpressureAction = iota
	CloseTarget
)

// Policy decides what happens when a target's send queue is full.
type Policy interface {
	OnBackPressure(target core.Channel) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Channel) BackpressureAction { return DropMessage }

type ClosePolicy struct{}

func (ClosePolicy) OnBackPressure(core.Channel) BackpressureAction { return CloseTarget }

func PolicyFor(name string) (Policy, error) {
	switch name {
	case config.BackpressureDrop, "":
		return DropPolicy{}, nil
	case config.BackpressureClose:
		return ClosePolicy{}, nil
	default:
		return nil, fmt.Errorf("unsupported backpressure policy %q", name)
	}
}

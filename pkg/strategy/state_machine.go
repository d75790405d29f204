package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PairState is the position a pair strategy holds in the spread.
type PairState int

const (
	PairFlat PairState = iota
	// PairLongSpread is long Y, short X: entered when the residual is low.
	PairLongSpread
	// PairShortSpread is short Y, long X: entered when the residual is high.
	PairShortSpread
)

// String returns the string representation of PairState
func (s PairState) String() string {
	switch s {
	case PairFlat:
		return "FLAT"
	case PairLongSpread:
		return "LONG_SPREAD"
	case PairShortSpread:
		return "SHORT_SPREAD"
	default:
		return "UNKNOWN"
	}
}

// Action is what the state machine asks the planner to do on a tick.
type Action int

const (
	ActionHold Action = iota
	ActionEnter
	ActionScaleIn
	ActionExit
)

// String returns the string representation of Action
func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "enter"
	case ActionScaleIn:
		return "scale_in"
	case ActionExit:
		return "exit"
	default:
		return "hold"
	}
}

// Reason records why a decision was taken.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEntry
	ReasonScaleIn
	ReasonThreshold
	ReasonMaxHold
	ReasonStopLoss
	ReasonTakeProfit
)

// String returns the string representation of Reason
func (r Reason) String() string {
	switch r {
	case ReasonEntry:
		return "entry"
	case ReasonScaleIn:
		return "scale_in"
	case ReasonThreshold:
		return "exit_threshold"
	case ReasonMaxHold:
		return "max_hold"
	case ReasonStopLoss:
		return "stop_loss"
	case ReasonTakeProfit:
		return "take_profit"
	default:
		return "none"
	}
}

// Decision is the outcome of one Evaluate call. Target is the state the pair
// moves to once the planner has emitted the orders.
type Decision struct {
	Action Action
	Target PairState
	Reason Reason
}

// PairThresholds configures entry and exit rules.
type PairThresholds struct {
	EntryZ       float64
	ExitZ        float64
	MaxHoldTicks int64           // 0 disables
	StopLoss     decimal.Decimal // 0 disables
	TakeProfit   decimal.Decimal // 0 disables
	AllowScaleIn bool
}

// Validate checks the threshold ordering.
func (t PairThresholds) Validate() error {
	if !(t.EntryZ > 0) {
		return fmt.Errorf("entry z %v must be positive", t.EntryZ)
	}
	if t.ExitZ < 0 || t.ExitZ >= t.EntryZ {
		return fmt.Errorf("exit z %v must be in [0, %v)", t.ExitZ, t.EntryZ)
	}
	if t.MaxHoldTicks < 0 || t.StopLoss.IsNegative() || t.TakeProfit.IsNegative() {
		return fmt.Errorf("max hold, stop loss and take profit must not be negative")
	}
	return nil
}

// PairStateMachine carries FLAT / LONG_SPREAD / SHORT_SPREAD hysteresis
// across ticks. Evaluate only proposes; Enter, BeginExit and Exit commit,
// so a decision the planner could not fill leaves the state untouched.
type PairStateMachine struct {
	th PairThresholds

	state      PairState
	entryTick  int64
	entryMidX  decimal.Decimal
	entryMidY  decimal.Decimal
	flattening bool
	exitReason Reason
}

// NewPairStateMachine starts FLAT.
func NewPairStateMachine(th PairThresholds) (*PairStateMachine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &PairStateMachine{th: th}, nil
}

// State returns the committed state.
func (m *PairStateMachine) State() PairState { return m.state }

// EntryTick returns the tick the current position was entered on.
func (m *PairStateMachine) EntryTick() int64 { return m.entryTick }

// Flattening reports whether an exit is in progress.
func (m *PairStateMachine) Flattening() bool { return m.flattening }

// HeldTicks returns how long the current position has been held.
func (m *PairStateMachine) HeldTicks(tick int64) int64 {
	if m.state == PairFlat {
		return 0
	}
	return tick - m.entryTick
}

// Evaluate proposes the action for this tick. While the z-score is not
// ready nothing changes.
func (m *PairStateMachine) Evaluate(tick int64, z float64, ready bool, pnl decimal.Decimal) Decision {
	hold := Decision{Action: ActionHold, Target: m.state}
	if !ready {
		return hold
	}

	switch m.state {
	case PairFlat:
		if z >= m.th.EntryZ {
			return Decision{Action: ActionEnter, Target: PairShortSpread, Reason: ReasonEntry}
		}
		if z <= -m.th.EntryZ {
			return Decision{Action: ActionEnter, Target: PairLongSpread, Reason: ReasonEntry}
		}

	case PairLongSpread:
		if r := m.exitCheck(tick, pnl, z >= -m.th.ExitZ); r != ReasonNone {
			return Decision{Action: ActionExit, Target: PairFlat, Reason: r}
		}
		if m.th.AllowScaleIn && z <= -m.th.EntryZ {
			return Decision{Action: ActionScaleIn, Target: PairLongSpread, Reason: ReasonScaleIn}
		}

	case PairShortSpread:
		if r := m.exitCheck(tick, pnl, z <= m.th.ExitZ); r != ReasonNone {
			return Decision{Action: ActionExit, Target: PairFlat, Reason: r}
		}
		if m.th.AllowScaleIn && z >= m.th.EntryZ {
			return Decision{Action: ActionScaleIn, Target: PairShortSpread, Reason: ReasonScaleIn}
		}
	}
	return hold
}

func (m *PairStateMachine) exitCheck(tick int64, pnl decimal.Decimal, reverted bool) Reason {
	switch {
	case m.flattening:
		return m.exitReason
	case reverted:
		return ReasonThreshold
	case m.th.MaxHoldTicks > 0 && m.HeldTicks(tick) > m.th.MaxHoldTicks:
		return ReasonMaxHold
	case m.th.StopLoss.IsPositive() && pnl.LessThanOrEqual(m.th.StopLoss.Neg()):
		return ReasonStopLoss
	case m.th.TakeProfit.IsPositive() && pnl.GreaterThanOrEqual(m.th.TakeProfit):
		return ReasonTakeProfit
	}
	return ReasonNone
}

// Enter commits a FLAT → LONG/SHORT transition.
func (m *PairStateMachine) Enter(target PairState, tick int64, midX, midY float64) error {
	if m.state != PairFlat {
		return fmt.Errorf("enter %s from %s: not flat", target, m.state)
	}
	if target != PairLongSpread && target != PairShortSpread {
		return fmt.Errorf("enter %s: not a position state", target)
	}
	m.state = target
	m.entryTick = tick
	m.entryMidX = decimal.NewFromFloat(midX)
	m.entryMidY = decimal.NewFromFloat(midY)
	return nil
}

// BeginExit latches an exit whose flattening orders could not fully cover
// the inventory. Later ready ticks keep proposing the same exit.
func (m *PairStateMachine) BeginExit(reason Reason) {
	if m.state == PairFlat {
		return
	}
	m.flattening = true
	m.exitReason = reason
}

// Exit commits the return to FLAT.
func (m *PairStateMachine) Exit() {
	m.state = PairFlat
	m.entryTick = 0
	m.entryMidX = decimal.Zero
	m.entryMidY = decimal.Zero
	m.flattening = false
	m.exitReason = ReasonNone
}

// UnrealizedPnL marks the legs to the current mids against the entry mids:
// posX*(midX-entryX) + posY*(midY-entryY). Zero while FLAT.
func (m *PairStateMachine) UnrealizedPnL(posX, posY int64, midX, midY float64) decimal.Decimal {
	if m.state == PairFlat {
		return decimal.Zero
	}
	legX := decimal.NewFromInt(posX).Mul(decimal.NewFromFloat(midX).Sub(m.entryMidX))
	legY := decimal.NewFromInt(posY).Mul(decimal.NewFromFloat(midY).Sub(m.entryMidY))
	return legX.Add(legY)
}

// MachineSnapshot is the checkpointable state machine state.
type MachineSnapshot struct {
	State      PairState       `json:"state"`
	EntryTick  int64           `json:"entry_tick"`
	EntryMidX  decimal.Decimal `json:"entry_mid_x"`
	EntryMidY  decimal.Decimal `json:"entry_mid_y"`
	Flattening bool            `json:"flattening"`
	ExitReason Reason          `json:"exit_reason"`
}

// Snapshot captures the committed state.
func (m *PairStateMachine) Snapshot() MachineSnapshot {
	return MachineSnapshot{
		State:      m.state,
		EntryTick:  m.entryTick,
		EntryMidX:  m.entryMidX,
		EntryMidY:  m.entryMidY,
		Flattening: m.flattening,
		ExitReason: m.exitReason,
	}
}

// Restore loads a snapshot.
func (m *PairStateMachine) Restore(s MachineSnapshot) error {
	switch s.State {
	case PairFlat, PairLongSpread, PairShortSpread:
	default:
		return fmt.Errorf("unknown pair state %d", s.State)
	}
	m.state = s.State
	m.entryTick = s.EntryTick
	m.entryMidX = s.EntryMidX
	m.entryMidY = s.EntryMidY
	m.flattening = s.Flattening && s.State != PairFlat
	m.exitReason = s.ExitReason
	return nil
}

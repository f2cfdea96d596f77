package service

import (
	"fmt"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
)

// orderTransitions lists every automatic step change. Cancel is the only
// way back to Initial from later steps and bypasses this table.
var orderTransitions = map[domain.Step]map[domain.Step]struct{}{
	domain.StepInitial: {
		domain.StepGotQuote: {},
	},
	domain.StepGotQuote: {
		domain.StepInitial:           {},
		domain.StepWaitingForPayment: {},
		domain.StepGotTransfer:       {},
		domain.StepPaymentFailed:     {},
	},
	domain.StepWaitingForPayment: {
		domain.StepProcessingPayment: {},
		domain.StepPaymentFailed:     {},
	},
	domain.StepProcessingPayment: {
		domain.StepGotTransfer:   {},
		domain.StepPaymentFailed: {},
	},
	domain.StepGotTransfer: {
		domain.StepPaymentCompleted: {},
		domain.StepPaymentFailed:    {},
	},
	domain.StepPaymentCompleted: {},
	domain.StepPaymentFailed:    {},
}

func canTransition(current, next domain.Step) bool {
	nextStates, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func checkTransition(current, next domain.Step) error {
	if !canTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}

package backend

import (
	"context"
	"fmt"
)

const echoNote = "(AI replies are disabled; set ai.strategy to direct or conversation to enable them.)"

// Echo answers without any model.
type Echo struct{}

// NewEcho creates an echo responder.
func NewEcho() *Echo {
	return &Echo{}
}

// Name returns the strategy name
func (e *Echo) Name() string {
	return StrategyEcho
}

// Respond repeats the message back without calling a model
func (e *Echo) Respond(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("I heard you say: %s\n%s", req.Text, echoNote), nil
}

package analytics

import (
	"context"

	"github.com/arbordb/arbor/pkg/rdferr"
)

// PregelMessage is one message sent to a vertex for delivery at the
// start of the next superstep.
type PregelMessage struct {
	To      string
	Payload any
}

// PregelVertexState is one vertex's mutable state across supersteps.
type PregelVertexState struct {
	ID     string
	Value  any
	Halted bool
}

// PregelProgram is the vertex function a Pregel computation runs for
// every active vertex each superstep: given the vertex's own state and
// its delivered inbox, it returns the vertex's next state (Halted votes
// to halt; a halted vertex runs again in any superstep that delivers it
// messages) and any messages to send on.
type PregelProgram func(state PregelVertexState, inbox []any) (PregelVertexState, []PregelMessage)

// PregelBSP runs program to completion: each superstep delivers the
// prior superstep's outbox, runs program on every non-halted vertex (or
// every vertex with a non-empty inbox), then barriers before swapping
// inboxes for the next round. Terminates when every vertex has voted to
// halt and no messages are in flight, or at maxSupersteps.
//
// ctx is checked once per superstep; on cancellation PregelBSP returns
// the states as of the last completed superstep plus a
// *rdferr.CancelledErr, discarding the in-flight superstep's updates.
func PregelBSP(ctx context.Context, g *GraphFrame, initial func(id string) any, program PregelProgram, maxSupersteps int) (map[string]PregelVertexState, error) {
	states := make(map[string]PregelVertexState, g.Order())
	for _, id := range g.ids {
		states[id] = PregelVertexState{ID: id, Value: initial(id)}
	}

	inbox := make(map[string][]any)
	for superstep := 0; superstep < maxSupersteps; superstep++ {
		select {
		case <-ctx.Done():
			return states, &rdferr.CancelledErr{}
		default:
		}
		active := map[string]bool{}
		for id, msgs := range inbox {
			if len(msgs) > 0 {
				active[id] = true
			}
		}
		for id, s := range states {
			if !s.Halted {
				active[id] = true
			}
		}
		if len(active) == 0 {
			break
		}

		nextInbox := make(map[string][]any)
		for id := range active {
			s := states[id]
			next, outgoing := program(s, inbox[id])
			states[id] = next
			for _, m := range outgoing {
				nextInbox[m.To] = append(nextInbox[m.To], m.Payload)
			}
		}
		inbox = nextInbox

		allHalted := true
		for _, s := range states {
			if !s.Halted {
				allHalted = false
				break
			}
		}
		if allHalted && len(inbox) == 0 {
			break
		}
	}
	return states, nil
}

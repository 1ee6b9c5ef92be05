package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// StateGraph represents a generic state-based graph with compile-time type
// safety. The type parameter S represents the state type, typically a struct.
//
// Example usage:
//
//	type DraftState struct {
//	    SectionIndex int
//	    Content      string
//	}
//
//	g := graph.NewStateGraph[DraftState]()
//	g.AddNode("generate", "Generate section content", func(ctx context.Context, state DraftState) (DraftState, error) {
//	    state.SectionIndex++
//	    return state, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges maps a "From" node to a condition deriving the "To" node
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// retryPolicy defines retry behavior for failed nodes
	retryPolicy *RetryPolicy

	// stateMerger is an optional function to merge states from parallel execution
	stateMerger StateMerger[S]
}

// Node represents a typed node in the graph.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// StateMerger is a typed function to merge states from parallel execution.
type StateMerger[S any] func(ctx context.Context, currentState S, newStates []S) (S, error)

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode adds a new node to the state graph with the given name,
// description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is
// determined at runtime from the current state.
//
// Example:
//
//	g.AddConditionalEdge("validate_quality", func(ctx context.Context, state DraftState) string {
//	    if state.QualityScore >= threshold {
//	        return graph.END
//	    }
//	    return "generate"
//	})
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy for the graph.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// SetStateMerger sets the state merger function for the state graph.
func (g *StateGraph[S]) SetStateMerger(merger StateMerger[S]) {
	g.stateMerger = merger
}

// Nodes returns the names of all registered nodes.
func (g *StateGraph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Runnable represents a compiled state graph that can be invoked.
type Runnable[S any] struct {
	graph *StateGraph[S]

	// stepHook, when set, is called after each step's state has been merged,
	// with the nodes scheduled to run next.
	stepHook func(ctx context.Context, nodeName string, state S, next []string)
}

// Compile compiles the state graph and returns a Runnable instance.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}

	return &Runnable[S]{graph: g}, nil
}

// Invoke executes the compiled state graph with the given input state and
// returns the final state.
func (r *Runnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input
// state and invocation config.
func (r *Runnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	state := initialState

	currentNodes := []string{r.graph.entryPoint}

	if config != nil {
		if len(config.ResumeFrom) > 0 {
			currentNodes = config.ResumeFrom
		}

		ctx = WithConfig(ctx, config)
		if config.ResumeValue != nil {
			ctx = WithResumeValue(ctx, config.ResumeValue)
		}
	}

	for len(currentNodes) > 0 {
		// Filter out END nodes
		activeNodes := make([]string, 0, len(currentNodes))
		for _, node := range currentNodes {
			if node != END {
				activeNodes = append(activeNodes, node)
			}
		}
		currentNodes = activeNodes

		if len(currentNodes) == 0 {
			break
		}

		if config != nil && len(config.InterruptBefore) > 0 {
			for _, node := range currentNodes {
				if slices.Contains(config.InterruptBefore, node) {
					return state, &GraphInterrupt{Node: node, State: state, NextNodes: currentNodes}
				}
			}
		}

		results, errorsList := r.executeNodesParallel(ctx, currentNodes, state)

		for _, err := range errorsList {
			if err != nil {
				var nodeInterrupt *NodeInterrupt
				if errors.As(err, &nodeInterrupt) {
					return state, &GraphInterrupt{
						Node:           nodeInterrupt.Node,
						State:          state,
						InterruptValue: nodeInterrupt.Value,
						NextNodes:      []string{nodeInterrupt.Node},
					}
				}
				var zero S
				return zero, err
			}
		}

		var err error
		state, err = r.mergeState(ctx, state, results)
		if err != nil {
			var zero S
			return zero, err
		}

		nextNodesList, err := r.determineNextNodes(ctx, currentNodes, state)
		if err != nil {
			var zero S
			return zero, err
		}

		nodesRan := make([]string, len(currentNodes))
		copy(nodesRan, currentNodes)

		currentNodes = nextNodesList

		if r.stepHook != nil {
			for _, node := range nodesRan {
				r.stepHook(ctx, node, state, nextNodesList)
			}
		}

		if config != nil && len(config.InterruptAfter) > 0 {
			for _, node := range nodesRan {
				if slices.Contains(config.InterruptAfter, node) {
					return state, &GraphInterrupt{
						Node:      node,
						State:     state,
						NextNodes: nextNodesList,
					}
				}
			}
		}
	}

	return state, nil
}

// executeNodeWithRetry executes a node with retry logic based on the retry policy.
func (r *Runnable[S]) executeNodeWithRetry(ctx context.Context, node Node[S], state S) (S, error) {
	var lastErr error
	var zero S

	maxAttempts := 1
	if r.graph.retryPolicy != nil {
		maxAttempts = r.graph.retryPolicy.MaxRetries + 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := node.Function(ctx, state)
		if err == nil {
			return result, nil
		}

		// Interrupts are control flow, never retried
		var nodeInterrupt *NodeInterrupt
		if errors.As(err, &nodeInterrupt) {
			return zero, err
		}

		lastErr = err

		if r.graph.retryPolicy != nil && attempt < maxAttempts-1 && r.isRetryableError(err) {
			delay := r.calculateBackoffDelay(attempt)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return zero, ctx.Err()
				}
			}
			continue
		}

		break
	}

	return zero, lastErr
}

// isRetryableError checks if an error is retryable based on the retry policy.
func (r *Runnable[S]) isRetryableError(err error) bool {
	if r.graph.retryPolicy == nil {
		return false
	}

	errorStr := err.Error()
	for _, retryablePattern := range r.graph.retryPolicy.RetryableErrors {
		if strings.Contains(errorStr, retryablePattern) {
			return true
		}
	}

	return false
}

// calculateBackoffDelay calculates the delay for retry based on the backoff strategy.
func (r *Runnable[S]) calculateBackoffDelay(attempt int) time.Duration {
	if r.graph.retryPolicy == nil {
		return 0
	}

	baseDelay := time.Second

	switch r.graph.retryPolicy.BackoffStrategy {
	case FixedBackoff:
		return baseDelay
	case ExponentialBackoff:
		// 1s, 2s, 4s, 8s, ...
		return baseDelay * time.Duration(1<<attempt)
	case LinearBackoff:
		// 1s, 2s, 3s, 4s, ...
		return baseDelay * time.Duration(attempt+1)
	default:
		return baseDelay
	}
}

// executeNodesParallel executes nodes in parallel and returns their results or errors.
func (r *Runnable[S]) executeNodesParallel(ctx context.Context, nodes []string, state S) ([]S, []error) {
	var wg sync.WaitGroup
	results := make([]S, len(nodes))
	errorsList := make([]error, len(nodes))

	for i, nodeName := range nodes {
		node, ok := r.graph.nodes[nodeName]
		if !ok {
			errorsList[i] = fmt.Errorf("%w: %s", ErrNodeNotFound, nodeName)
			continue
		}

		idx := i
		n := node
		name := nodeName

		SafeGo(&wg, func() {
			res, err := r.executeNodeWithRetry(ctx, n, state)
			if err != nil {
				var nodeInterrupt *NodeInterrupt
				if errors.As(err, &nodeInterrupt) {
					nodeInterrupt.Node = name
					errorsList[idx] = err
					return
				}
				errorsList[idx] = fmt.Errorf("error in node %s: %w", name, err)
				return
			}
			results[idx] = res
		}, func(panicVal any) {
			errorsList[idx] = fmt.Errorf("panic in node %s: %v", name, panicVal)
		})
	}
	wg.Wait()
	return results, errorsList
}

// mergeState merges the step results into the current state.
func (r *Runnable[S]) mergeState(ctx context.Context, currentState S, results []S) (S, error) {
	state := currentState
	if r.graph.stateMerger != nil {
		var err error
		state, err = r.graph.stateMerger(ctx, state, results)
		if err != nil {
			var zero S
			return zero, fmt.Errorf("state merge failed: %w", err)
		}
	} else if len(results) > 0 {
		state = results[len(results)-1]
	}
	return state, nil
}

// determineNextNodes determines the next nodes to execute based on static
// and conditional edges.
func (r *Runnable[S]) determineNextNodes(ctx context.Context, currentNodes []string, state S) ([]string, error) {
	nextNodesSet := make(map[string]bool)
	var nextNodesList []string

	for _, nodeName := range currentNodes {
		nextNodeFn, hasConditional := r.graph.conditionalEdges[nodeName]
		if hasConditional {
			nextNode := nextNodeFn(ctx, state)
			if nextNode == "" {
				return nil, fmt.Errorf("conditional edge returned empty next node from %s", nodeName)
			}
			if !nextNodesSet[nextNode] {
				nextNodesSet[nextNode] = true
				nextNodesList = append(nextNodesList, nextNode)
			}
			continue
		}

		foundNext := false
		for _, edge := range r.graph.edges {
			if edge.From == nodeName {
				if !nextNodesSet[edge.To] {
					nextNodesSet[edge.To] = true
					nextNodesList = append(nextNodesList, edge.To)
				}
				foundNext = true
				// No break, to allow fan-out from the same node
			}
		}

		if !foundNext {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, nodeName)
		}
	}

	return nextNodesList, nil
}

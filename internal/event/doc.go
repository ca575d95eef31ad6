/*
Package event provides a type-safe, pub/sub event system for orka-core.

The event system enables decoupled communication between the supervisor,
orchestrator, hook receiver, and control surface: publishers emit events and
subscribers react to them without direct dependencies between packages.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve type information. It provides
both synchronous and asynchronous event publishing patterns.

# Event Types

Session Events:
  - session.created / session.updated / session.deleted

Fork Events:
  - fork.created / fork.updated: branch lifecycle transitions
  - fork.exported: export phase recorded a contextPath
  - fork.merged: merge phase injected context into the parent pane

Hook and Agent Events:
  - hook.received: a normalized hook payload reached the supervisor's queue
  - agent.state: the terminal-state parser reclassified a pane
  - watchdog.triggered: K consecutive idle ticks fired a synthetic check
  - decision.made: the LLM fallback decision maker returned a verdict

Permission Events:
  - permission.required / permission.resolved

# Basic Usage

Publishing events:

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

	event.PublishSync(event.Event{
		Type: event.AgentStateChanged,
		Data: event.AgentStateChangedData{AgentID: id, State: "idle"},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		logging.Info().Str("id", data.Info.ID).Msg("session created")
	})
	defer unsubscribe()

Subscribing to all events (used by the SSE/WebSocket bridges in
internal/server):

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers run synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple
goroutines. Both publishing and subscribing are protected by internal
synchronization.

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the
underlying pubsub for advanced use cases (middleware, routing, or migrating
to a distributed broker without changing this package's API):

	pubsub := event.PubSub()
*/
package event

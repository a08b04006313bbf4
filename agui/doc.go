// Package agui holds the AG-UI protocol pieces shared by the adapter and
// the HTTP server.
//
// AG-UI (Agent-User Interface) is an open, lightweight, event-based protocol
// that standardizes how AI agents connect to user-facing applications.
//
// # Overview
//
// This package provides:
//   - [RunAgentInput]: the inbound request, decoded from camelCase or snake_case JSON
//   - [ForwardedProps]: the Dify settings a client forwards with the request
//   - [Mapper]: lifecycle events (RUN_STARTED, STEP_STARTED, ...) for one run
//   - [FixEventIDs]: fills thread, run and message ids an event left empty
//
// Event types themselves come from the AG-UI Go SDK
// (github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events).
//
// # Usage
//
//	mapper := agui.NewMapper(input.ThreadID, input.RunID)
//	emit(mapper.RunStarted())
//	emit(mapper.StepStarted("chat"))
//	// ... translated events ...
//	emit(mapper.StepFinished("chat"))
//	emit(mapper.RunFinished())
package agui

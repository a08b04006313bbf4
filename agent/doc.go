// Package agent adapts a Dify chat application to the AG-UI protocol.
//
// An [Agent] takes an AG-UI [agui.RunAgentInput], sends the last user
// message to Dify's chat-messages endpoint, and streams the answer back as
// AG-UI events.
//
// # Basic Usage
//
//	a, err := agent.New(apiKey, agent.WithBaseURL("https://dify.internal/v1"))
//	if err != nil {
//	    return err
//	}
//
//	for ev := range a.Run(ctx, input) {
//	    write(ev)
//	}
//
// # Request Rules
//
// Dify keeps the conversation history itself, so a request may only carry
// user messages. Any other role is rejected with a RUN_ERROR rather than
// silently dropped. forwardedProps.user is required; inputs, response_mode,
// files and auto_generate_name are optional. See [PrepareRequest].
//
// # Event Stream
//
// Every run that reaches Dify is wrapped as:
//
//	RUN_STARTED -> STEP_STARTED("chat") -> ... -> STEP_FINISHED -> RUN_FINISHED
//
// RUN_STARTED carries the conversation id Dify reports, which may differ
// from the thread id in the request. The inner events come from a
// [Translator]:
//
//   - message / agent_message: TEXT_MESSAGE_START, TEXT_MESSAGE_CONTENT, TEXT_MESSAGE_END
//   - agent_thought: THINKING_TEXT_MESSAGE_CONTENT and TOOL_CALL_START/ARGS/END/RESULT
//   - message_file: TOOL_CALL_RESULT carrying the file URL
//   - message_replace: the text message restarted with the replacement
//   - error: RUN_ERROR followed by STEP_FINISHED
//
// Thoughts that repeat text already streamed to the user, or that only
// restate a tool observation, are dropped.
//
// # Retries
//
// If Dify rejects the conversation id with HTTP 400, the run is retried once
// without it, and the new conversation id becomes the run's thread id. No
// other error is retried.
package agent

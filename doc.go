// Package difybridge exposes Dify chat applications as AG-UI agents.
//
// A Dify application streams its replies as Server-Sent Events from the
// chat-messages endpoint. difybridge reads that stream and re-emits it as the
// AG-UI event protocol, so AG-UI frontends such as CopilotKit can talk to a
// Dify app without knowing anything about it.
//
// # Packages
//
//   - [github.com/spetersoncode/difybridge/dify]: client for the Dify chat-messages API
//   - [github.com/spetersoncode/difybridge/agent]: the adapter (request normalisation,
//     event translation and run lifecycle)
//   - [github.com/spetersoncode/difybridge/agui]: AG-UI input types and lifecycle helpers
//   - [github.com/spetersoncode/difybridge/server]: HTTP server streaming runs as SSE
//   - [github.com/spetersoncode/difybridge/config]: YAML and environment configuration
//
// # Basic Usage
//
// Run a single request and consume the AG-UI events:
//
//	a, err := agent.New(os.Getenv("DIFY_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for ev := range a.Run(ctx, input) {
//	    data, _ := ev.ToJSON()
//	    fmt.Println(string(data))
//	}
//
// # Error Handling
//
// Errors produced while preparing or streaming a run are categorized. Use
// [IsValidation], [IsTransport], [IsUpstream] and [IsConversation] to
// classify them, and [StatusCodeOf] and [CodeOf] to read upstream metadata.
package difybridge

// Version is the release version reported by the CLI and health endpoint.
const Version = "0.3.0"

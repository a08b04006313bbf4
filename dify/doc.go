// Package dify is a small client for the Dify chat-messages API.
//
// It covers only what the AG-UI adapter needs: posting a chat request,
// reading the Server-Sent-Events answer as [StreamEvent] records, the
// blocking response mode, and turning error statuses into [APIError]
// values.
//
//	c := dify.NewClient(apiKey, dify.WithBaseURL("https://dify.internal/v1"))
//	stream, err := c.ChatMessages(ctx, &dify.ChatRequest{Query: "hi", User: "u-1"})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    ev, err := stream.Recv()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
package dify

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama generate API.
//
// # Key Types
//
//   - Client: HTTP client for the local inference server
//   - GenerateRequest: body of POST /api/generate
//   - StreamChunk: one decoded line of a streaming response
//   - LineDecoder: newline-delimited JSON decoder for streaming bodies
//   - ClientError: typed error with an ErrorType for handling
//
// # Usage
//
//	client := ollama.NewClient()
//	body, err := client.GenerateStream(ctx, ollama.GenerateRequest{
//	    Model:  "deepseek-coder:6.7b",
//	    Prompt: "Hello",
//	    Stream: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//
//	dec := ollama.NewLineDecoder(body)
//	for {
//	    chunk, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// The client holds no deadline for streaming requests. Callers bound a turn
// with the context they pass in; cancelling it drops the connection.
package ollama

package openai

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// ssestreamChatChunk and ssestreamResponse name the two streaming shapes
// this adapter consumes, mirroring how the Anthropic adapter names
// ssestream.Stream[sdk.MessageStreamEventUnion] inline.
type ssestreamChatChunk = ssestream.Stream[openai.ChatCompletionChunk]
type ssestreamResponse = ssestream.Stream[openai.ResponseStreamEventUnion]

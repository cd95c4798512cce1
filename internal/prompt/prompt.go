// Package prompt builds the chat request sent for one transcript chunk.
package prompt

import (
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/speakerfmt/internal/chunk"
)

// Default request parameters.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.5
)

// Instructions tells the model how to format a chunk.
// The chunk itself is sent as the user message, never inlined here.
const Instructions = `You are a professional transcriber. You receive a raw excerpt of a conversation transcript.

Rewrite it as a readable transcript:
- Insert paragraph breaks, with a blank line between paragraphs
- Start every speaker turn on its own line with a label followed by a colon
- Label distinct speakers consistently ("Speaker 1:", "Speaker 2:", ...) using contextual cues
- Use a speaker's real name as the label only when the transcript itself states it
- Keep every spoken word verbatim: do not summarize, omit, reorder, translate or correct content
- Do not add titles, notes, commentary or any text that was not spoken
- Output only the formatted transcript`

// Request is everything needed to format one chunk. It is built fresh per chunk.
type Request struct {
	Chunk        chunk.Chunk
	Model        string
	Instructions string
	Temperature  float32
}

// Messages returns the system and user messages for the chat completion call.
func (r Request) Messages() []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: r.Instructions},
		{Role: openai.ChatMessageRoleUser, Content: r.Chunk.Text},
	}
}

// ChatRequest returns the go-openai request for this chunk.
func (r Request) ChatRequest() openai.ChatCompletionRequest {
	temp := r.Temperature
	if temp == 0 {
		// go-openai omits a zero temperature, which the API reads as 1.
		temp = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    r.Messages(),
		Temperature: temp,
	}
}

// Builder builds Requests. It holds only immutable settings, so Build is pure.
type Builder struct {
	model       string
	temperature float32
	speakers    []string
}

// Option configures a Builder.
type Option func(*Builder)

// WithModel sets the model identifier. Empty keeps the default.
func WithModel(model string) Option {
	return func(b *Builder) {
		if model = strings.TrimSpace(model); model != "" {
			b.model = model
		}
	}
}

// WithTemperature sets the sampling temperature. Negative values are ignored.
func WithTemperature(t float32) Option {
	return func(b *Builder) {
		if t >= 0 {
			b.temperature = t
		}
	}
}

// WithSpeakers adds the known participants' names to the instructions.
func WithSpeakers(names ...string) Option {
	return func(b *Builder) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				b.speakers = append(b.speakers, n)
			}
		}
	}
}

// NewBuilder creates a Builder with default model and temperature.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		model:       DefaultModel,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Model returns the configured model identifier.
func (b *Builder) Model() string {
	return b.model
}

// Build returns the request for c. Calling it twice yields identical requests.
func (b *Builder) Build(c chunk.Chunk) Request {
	return Request{
		Chunk:        c,
		Model:        b.model,
		Instructions: b.instructions(),
		Temperature:  b.temperature,
	}
}

func (b *Builder) instructions() string {
	if len(b.speakers) == 0 {
		return Instructions
	}
	return fmt.Sprintf("%s\n\nKnown participants: %s. Use these names as labels when the context makes the speaker clear.",
		Instructions, strings.Join(b.speakers, ", "))
}

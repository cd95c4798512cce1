package formatter

// Exports for testing. These allow black-box tests to inject dependencies
// without modifying the public API.

// ChatCompleter exposes the internal interface so tests can implement fakes.
type ChatCompleter = chatCompleter

var WithChatCompleter = withChatCompleter

// Function exports for unit testing internal logic.
var (
	ClassifyError = classifyError
	ExtractText   = extractText
)

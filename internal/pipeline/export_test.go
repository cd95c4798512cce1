package pipeline

// Exports for testing.
var WithIDFunc = withIDFunc
